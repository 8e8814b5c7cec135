package availability

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// Repository persists availability with last-write-wins per (user, org).
//
// Upsert returns the record that is stored after the write; when the incoming
// record is older than the stored one, the stored one is returned unchanged.
type Repository interface {
	Upsert(ctx context.Context, a Availability) (Availability, error)
	Get(ctx context.Context, userID, orgID string) (Availability, error)
	// FindAvailable lists status=available rows of an org, newest first.
	FindAvailable(ctx context.Context, orgID string) ([]Availability, error)
}

type key struct{ userID, orgID string }

// MemoryRepo keeps availability in process memory.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[key]Availability
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[key]Availability{}} }

func (r *MemoryRepo) Upsert(ctx context.Context, a Availability) (Availability, error) {
	if a.UserID == "" || a.OrgID == "" {
		return Availability{}, ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{a.UserID, a.OrgID}
	if cur, ok := r.rows[k]; ok && cur.UpdatedAt.After(a.UpdatedAt) {
		return clone(cur), nil
	}
	r.rows[k] = clone(a)
	return clone(a), nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID, orgID string) (Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[key{userID, orgID}]
	if !ok {
		return Availability{}, ErrNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepo) FindAvailable(ctx context.Context, orgID string) ([]Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Availability, 0)
	for k, a := range r.rows {
		if k.orgID == orgID && a.Status == StatusAvailable {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func clone(a Availability) Availability {
	a.Skills = slices.Clone(a.Skills)
	return a
}
