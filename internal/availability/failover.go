package availability

import (
	"context"
	"log/slog"
	"time"

	"signaling-platform/internal/failover"
)

// FailoverRepo fronts a durable Repository with a memory shadow.
// It follows the same rules as the call store: retry once, degrade for good,
// mirror every durable write.
type FailoverRepo struct {
	primary Repository
	shadow  *MemoryRepo
	sw      *failover.Switch
}

func NewFailoverRepo(primary Repository, log *slog.Logger, timeout time.Duration) *FailoverRepo {
	return &FailoverRepo{
		primary: primary,
		shadow:  NewMemoryRepo(),
		sw: failover.New("availability", log, failover.Options{
			Timeout:       timeout,
			IsDomain:      IsDomainError,
			StartDegraded: primary == nil,
		}),
	}
}

func (r *FailoverRepo) Degraded() bool { return r.sw.Degraded() }

func (r *FailoverRepo) Upsert(ctx context.Context, a Availability) (Availability, error) {
	return failover.Run(ctx, r.sw, "upsert",
		func(ctx context.Context) (Availability, error) {
			out, err := r.primary.Upsert(ctx, a)
			if err == nil {
				_, _ = r.shadow.Upsert(ctx, out)
			}
			return out, err
		},
		func(ctx context.Context) (Availability, error) { return r.shadow.Upsert(ctx, a) },
	)
}

func (r *FailoverRepo) Get(ctx context.Context, userID, orgID string) (Availability, error) {
	return failover.Run(ctx, r.sw, "get",
		func(ctx context.Context) (Availability, error) { return r.primary.Get(ctx, userID, orgID) },
		func(ctx context.Context) (Availability, error) { return r.shadow.Get(ctx, userID, orgID) },
	)
}

func (r *FailoverRepo) FindAvailable(ctx context.Context, orgID string) ([]Availability, error) {
	return failover.Run(ctx, r.sw, "find_available",
		func(ctx context.Context) ([]Availability, error) { return r.primary.FindAvailable(ctx, orgID) },
		func(ctx context.Context) ([]Availability, error) { return r.shadow.FindAvailable(ctx, orgID) },
	)
}
