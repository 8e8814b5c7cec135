// Package coordinator owns the call state machine.
//
// Every status change goes through transition, which issues one conditional
// write against the call store and, only when that write wins, fans the new
// state out to the interested rooms. Notifications are fire-and-forget: a
// transition is durable before anything is emitted.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"signaling-platform/internal/audit"
	"signaling-platform/internal/auth"
	"signaling-platform/internal/calls"
	"signaling-platform/internal/pending"
	"signaling-platform/internal/publisher"
	"signaling-platform/internal/rbac"
	"signaling-platform/internal/routing"
	"signaling-platform/pkg/logger"
)

const DefaultRingTimeout = 45 * time.Second

// Notifier delivers an event to every connection in a room and reports how
// many connections accepted it. Zero means delivery was not confirmed.
type Notifier interface {
	Emit(room, event string, payload any) int
}

// Auditor records successful transitions. audit.Service satisfies it.
type Auditor interface {
	LogTransition(ctx context.Context, t audit.Transition) error
}

type Coordinator struct {
	store   calls.Store
	router  routing.Engine
	notify  Notifier
	pending pending.Queue

	audit       Auditor
	mirror      publisher.Publisher
	topicPrefix string

	ringTimeout time.Duration
	clock       func() time.Time
	newID       func() string
	log         *slog.Logger
}

type Option func(*Coordinator)

func WithAuditor(a Auditor) Option { return func(c *Coordinator) { c.audit = a } }

// WithMirror publishes every transition to <prefix>/calls/<id>/state.
func WithMirror(p publisher.Publisher, prefix string) Option {
	return func(c *Coordinator) {
		c.mirror = p
		c.topicPrefix = prefix
	}
}

func WithRingTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.ringTimeout = d
		}
	}
}

func WithClock(clock func() time.Time) Option { return func(c *Coordinator) { c.clock = clock } }

func WithIDGenerator(f func() string) Option { return func(c *Coordinator) { c.newID = f } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = l } }

func New(store calls.Store, router routing.Engine, notify Notifier, queue pending.Queue, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		router:      router,
		notify:      notify,
		pending:     queue,
		ringTimeout: DefaultRingTimeout,
		clock:       time.Now,
		newID:       uuid.NewString,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.notify == nil {
		c.notify = discard{}
	}
	if c.pending == nil {
		c.pending = pending.NewMemoryQueue(pending.DefaultCapacity, c.clock)
	}
	c.log = c.log.With("component", "coordinator")
	return c
}

type discard struct{}

func (discard) Emit(string, string, any) int { return 0 }

type InitiateRequest struct {
	ClientID      string
	OrgID         string
	TargetStaffID string
	Department    string
	Purpose       string
	ClientName    string
	Skills        []string
}

type InitiateResult struct {
	CallID     string       `json:"callId"`
	Status     calls.Status `json:"status"`
	Candidates []string     `json:"candidates,omitempty"`
}

// Initiate routes a new call. With no eligible staff the call is recorded and
// immediately missed; nobody is ever invited to it.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.ClientID == "" || req.OrgID == "" {
		return InitiateResult{}, ErrInvalidRequest
	}

	decision, err := c.router.Route(ctx, routing.RouteInput{
		OrgID:         req.OrgID,
		TargetStaffID: req.TargetStaffID,
		Skills:        req.Skills,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	now := c.clock().UTC()
	call := calls.Call{
		ID:        c.newID(),
		OrgID:     req.OrgID,
		CreatedBy: req.ClientID,
		Metadata: calls.Metadata{
			SchemaVersion: calls.MetadataSchemaVersion,
			Department:    req.Department,
			Purpose:       req.Purpose,
			ClientName:    req.ClientName,
			Skills:        req.Skills,
		},
		RingExpiresAt: now.Add(c.ringTimeout),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	log := c.log.With("call_id", call.ID, "org_id", call.OrgID)

	if decision.Action != routing.ActionRing || len(decision.Candidates) == 0 {
		call.Status = calls.StatusInitiated
		if err := c.store.Create(ctx, call); err != nil {
			return InitiateResult{}, err
		}
		reason := decision.Reason
		if reason == "" {
			reason = ReasonNoStaff
		}
		missed, err := c.transition(ctx, call.ID, []calls.Status{calls.StatusInitiated},
			calls.Update{Status: calls.StatusMissed, Reason: reason, At: now}, "")
		if err != nil {
			return InitiateResult{}, err
		}
		log.Info("call missed at initiation", "reason", reason)
		return InitiateResult{CallID: missed.ID, Status: missed.Status}, nil
	}

	call.Status = calls.StatusRinging
	call.Candidates = slices.Clone(decision.Candidates)
	if err := c.store.Create(ctx, call); err != nil {
		return InitiateResult{}, err
	}
	c.record(ctx, call, "", req.ClientID)

	invite := InvitePayload{
		CallID:     call.ID,
		ClientInfo: ClientInfo{ClientID: req.ClientID, Name: req.ClientName},
		Purpose:    req.Purpose,
		Department: req.Department,
		Ts:         now.UnixMilli(),
		ExpiresAt:  call.RingExpiresAt,
	}
	for _, staffID := range call.Candidates {
		c.invite(ctx, staffID, invite)
	}
	c.broadcast(call, UpdatePayload{CallID: call.ID, State: string(call.Status)})

	log.Info("call ringing", "candidates", call.Candidates, "reason", decision.Reason)
	return InitiateResult{CallID: call.ID, Status: call.Status, Candidates: call.Candidates}, nil
}

// Accept claims a ringing call for any staff member of its org. A staff
// member who lost the race gets an error matching calls.ErrConflict.
func (c *Coordinator) Accept(ctx context.Context, callID string, staff auth.Identity) (calls.Call, error) {
	if err := c.authorizeStaff(ctx, callID, staff, false); err != nil {
		return calls.Call{}, err
	}
	return c.transition(ctx, callID, []calls.Status{calls.StatusRinging},
		calls.Update{Status: calls.StatusAccepted, AcceptedBy: staff.UserID, At: c.clock()}, staff.UserID)
}

// Decline is terminal; the call is not offered to anyone else. Only staff the
// call was offered to may decline it.
func (c *Coordinator) Decline(ctx context.Context, callID string, staff auth.Identity, reason string) (calls.Call, error) {
	if err := c.authorizeStaff(ctx, callID, staff, true); err != nil {
		return calls.Call{}, err
	}
	return c.transition(ctx, callID, []calls.Status{calls.StatusRinging},
		calls.Update{Status: calls.StatusDeclined, EndedBy: staff.UserID, Reason: reason, At: c.clock()}, staff.UserID)
}

// authorizeStaff checks ownership only. The status guard stays in the single
// conditional write that follows.
func (c *Coordinator) authorizeStaff(ctx context.Context, callID string, staff auth.Identity, offeredOnly bool) error {
	if callID == "" || staff.UserID == "" {
		return ErrInvalidRequest
	}
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return err
	}
	if !rbac.SameOrg(staff.Role, staff.OrgID, call.OrgID) {
		return ErrUnauthorized
	}
	if offeredOnly && !rbac.IsAdmin(staff.Role) && !member(call, staff.UserID) {
		return ErrUnauthorized
	}
	return nil
}

// Cancel withdraws a call that was not answered yet. Only its client may cancel.
func (c *Coordinator) Cancel(ctx context.Context, callID, clientID, reason string) (calls.Call, error) {
	if callID == "" || clientID == "" {
		return calls.Call{}, ErrInvalidRequest
	}
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if call.CreatedBy != clientID {
		return calls.Call{}, ErrUnauthorized
	}
	return c.transition(ctx, callID, []calls.Status{calls.StatusInitiated, calls.StatusRinging},
		calls.Update{Status: calls.StatusCanceled, EndedBy: clientID, Reason: reason, At: c.clock()}, clientID)
}

// End hangs up an accepted call. Only its client or the accepting staff may end it.
func (c *Coordinator) End(ctx context.Context, callID, userID, reason string) (calls.Call, error) {
	if callID == "" || userID == "" {
		return calls.Call{}, ErrInvalidRequest
	}
	call, err := c.store.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if call.Status == calls.StatusAccepted && userID != call.CreatedBy && userID != call.AcceptedBy {
		return calls.Call{}, ErrUnauthorized
	}
	return c.transition(ctx, callID, []calls.Status{calls.StatusAccepted},
		calls.Update{Status: calls.StatusEnded, EndedBy: userID, Reason: reason, At: c.clock()}, userID)
}

// Expire moves a ringing call to missed. The watchdog is its only caller; the
// client hears call.missed only when this write wins.
func (c *Coordinator) Expire(ctx context.Context, callID string) (calls.Call, error) {
	call, err := c.transition(ctx, callID, []calls.Status{calls.StatusRinging},
		calls.Update{Status: calls.StatusMissed, Reason: ReasonRingTimeout, At: c.clock()}, "")
	if err != nil {
		return calls.Call{}, err
	}
	c.notify.Emit(ClientRoom(call.CreatedBy), EventMissed, MissedPayload{CallID: call.ID, Reason: ReasonRingTimeout})
	return call, nil
}

// Get returns the stored call.
func (c *Coordinator) Get(ctx context.Context, callID string) (calls.Call, error) {
	return c.store.Get(ctx, callID)
}

func (c *Coordinator) transition(ctx context.Context, callID string, from []calls.Status, u calls.Update, actor string) (calls.Call, error) {
	u.At = u.At.UTC()
	call, err := c.store.Transition(ctx, callID, from, u)
	if err != nil {
		var guard *calls.GuardError
		if errors.As(err, &guard) {
			logger.From(ctx, c.log).Debug("transition rejected", "call_id", callID, "current", guard.Current, "to", u.Status)
		}
		return calls.Call{}, err
	}
	c.record(ctx, call, joinStatuses(from), actor)
	c.fanOut(ctx, call)
	return call, nil
}

// record appends the audit event and mirrors the new state. Both are best-effort.
func (c *Coordinator) record(ctx context.Context, call calls.Call, from, actor string) {
	if c.audit != nil {
		err := c.audit.LogTransition(ctx, audit.Transition{
			OrgID:       call.OrgID,
			CallID:      call.ID,
			From:        from,
			To:          string(call.Status),
			ActorUserID: actor,
			Reason:      call.Reason,
		})
		if err != nil {
			logger.From(ctx, c.log).Warn("audit transition failed", "call_id", call.ID, "err", err)
		}
	}
	if c.mirror != nil {
		err := publisher.PublishCallState(ctx, c.mirror, c.topicPrefix, publisher.CallState{
			CallID:     call.ID,
			OrgID:      call.OrgID,
			State:      string(call.Status),
			StaffID:    call.AcceptedBy,
			Reason:     call.Reason,
			OccurredAt: call.UpdatedAt,
		})
		if err != nil {
			logger.From(ctx, c.log).Warn("mirror transition failed", "call_id", call.ID, "err", err)
		}
	}
}

// fanOut tells the client and the call room about the new state. Once a call
// leaves ringing, every other candidate's invite is dismissed and any queued
// copy is dropped.
func (c *Coordinator) fanOut(ctx context.Context, call calls.Call) {
	update := UpdatePayload{CallID: call.ID, State: string(call.Status), StaffID: call.AcceptedBy, Reason: call.Reason}
	if call.Status == calls.StatusMissed && call.Reason == ReasonRingTimeout {
		// Expire sends the client call.missed instead.
		c.notify.Emit(CallRoom(call.ID), EventUpdate, update)
	} else {
		c.broadcast(call, update)
	}

	if call.Status == calls.StatusEnded {
		return
	}
	for _, staffID := range call.Candidates {
		if staffID != call.AcceptedBy {
			c.notify.Emit(StaffRoom(staffID), EventUpdate, update)
		}
		if err := c.pending.Remove(ctx, staffID, call.ID); err != nil {
			c.log.Warn("pending remove failed", "call_id", call.ID, "staff_id", staffID, "err", err)
		}
	}
}

func (c *Coordinator) broadcast(call calls.Call, update UpdatePayload) {
	c.notify.Emit(ClientRoom(call.CreatedBy), EventUpdate, update)
	c.notify.Emit(CallRoom(call.ID), EventUpdate, update)
}

// invite emits to the staff room and queues the payload when no connection took it.
func (c *Coordinator) invite(ctx context.Context, staffID string, p InvitePayload) {
	if c.notify.Emit(StaffRoom(staffID), EventInvite, p) > 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		c.log.Error("encode invite failed", "call_id", p.CallID, "err", err)
		return
	}
	if err := c.pending.Enqueue(ctx, staffID, pending.Notification{CallID: p.CallID, Payload: raw}); err != nil {
		c.log.Warn("pending enqueue failed", "call_id", p.CallID, "staff_id", staffID, "err", err)
		return
	}
	c.log.Debug("invite queued", "call_id", p.CallID, "staff_id", staffID)
}

// DeliverPending drains staffID's queue and replays invites whose call is
// still ringing. It returns the replayed call ids.
func (c *Coordinator) DeliverPending(ctx context.Context, staffID string) ([]string, error) {
	entries, err := c.pending.Drain(ctx, staffID)
	if err != nil {
		return nil, err
	}
	delivered := make([]string, 0, len(entries))
	for _, n := range entries {
		call, err := c.store.Get(ctx, n.CallID)
		if err != nil {
			if !errors.Is(err, calls.ErrNotFound) {
				c.log.Warn("pending lookup failed", "call_id", n.CallID, "err", err)
			}
			continue
		}
		if call.Status != calls.StatusRinging || !c.clock().Before(call.RingExpiresAt) {
			continue
		}
		c.notify.Emit(StaffRoom(staffID), EventInvite, n.Payload)
		delivered = append(delivered, n.CallID)
	}
	if len(delivered) > 0 {
		c.log.Info("pending invites delivered", "staff_id", staffID, "count", len(delivered))
	}
	return delivered, nil
}

func joinStatuses(list []calls.Status) string {
	parts := make([]string, 0, len(list))
	for _, s := range list {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, "|")
}
