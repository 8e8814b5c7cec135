package reporting

import (
	"context"
	"errors"
	"time"

	"signaling-platform/internal/calls"
)

// StoreRepo reads reporting rows straight from the call store.
type StoreRepo struct {
	store calls.Store
}

func NewStoreRepo(store calls.Store) *StoreRepo { return &StoreRepo{store: store} }

func (r *StoreRepo) ListCalls(ctx context.Context, orgID string, from, to time.Time) ([]calls.Call, error) {
	if orgID == "" {
		return nil, errors.New("org_id required")
	}
	return r.store.List(ctx, calls.ListFilter{OrgID: orgID, From: from, To: to})
}
