package availability

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// ChangeLogger records availability changes. audit.Service satisfies it.
type ChangeLogger interface {
	LogAvailabilityChange(ctx context.Context, orgID, userID, status string) error
}

// Registry is the staff availability service used by routing and the HTTP API.
type Registry struct {
	repo  Repository
	audit ChangeLogger
	log   *slog.Logger
	clock func() time.Time
}

type Option func(*Registry)

func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

func WithChangeLogger(l ChangeLogger) Option {
	return func(r *Registry) { r.audit = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func NewRegistry(repo Repository, opts ...Option) *Registry {
	r := &Registry{repo: repo, clock: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "availability")
	return r
}

// SetAvailability stamps the write with the registry clock and upserts it.
func (r *Registry) SetAvailability(ctx context.Context, userID, orgID string, status Status, skills []string) (Availability, error) {
	userID = strings.TrimSpace(userID)
	orgID = strings.TrimSpace(orgID)
	if userID == "" || orgID == "" {
		return Availability{}, ErrInvalidInput
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return Availability{}, err
	}

	out, err := r.repo.Upsert(ctx, Availability{
		UserID:    userID,
		OrgID:     orgID,
		Status:    status,
		Skills:    normalizeSkills(skills),
		UpdatedAt: r.clock().UTC(),
	})
	if err != nil {
		return Availability{}, err
	}
	r.log.Debug("availability updated", "user_id", userID, "org_id", orgID, "status", out.Status)

	if r.audit != nil {
		if err := r.audit.LogAvailabilityChange(ctx, orgID, userID, string(out.Status)); err != nil {
			r.log.Warn("audit availability change failed", "user_id", userID, "err", err)
		}
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, userID, orgID string) (Availability, error) {
	return r.repo.Get(ctx, userID, orgID)
}

// FindAvailable returns available staff of orgID holding all skills, most
// recently updated first.
func (r *Registry) FindAvailable(ctx context.Context, orgID string, skills []string) ([]Availability, error) {
	rows, err := r.repo.FindAvailable(ctx, orgID)
	if err != nil {
		return nil, err
	}
	want := normalizeSkills(skills)
	out := rows[:0:0]
	for _, a := range rows {
		if a.HasSkills(want) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b Availability) int {
		switch {
		case newer(a, b):
			return -1
		case newer(b, a):
			return 1
		}
		return 0
	})
	return out, nil
}

func normalizeSkills(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
