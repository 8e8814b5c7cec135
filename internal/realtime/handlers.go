package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"signaling-platform/internal/calls"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/rbac"
)

var (
	errMalformed    = errors.New("realtime: malformed frame")
	errUnknownEvent = errors.New("realtime: unknown event")
)

func (s *Server) dispatch(ctx context.Context, c *Conn, env Envelope) {
	var (
		data any
		err  error
	)
	switch env.Event {
	case EventInitiate:
		data, err = s.onInitiate(ctx, c, env.Data)
	case EventAccept:
		data, err = s.onAccept(ctx, c, env.Data)
	case EventDecline:
		data, err = s.onDecline(ctx, c, env.Data)
	case EventCancel:
		data, err = s.onCancel(ctx, c, env.Data)
	case EventEnd:
		data, err = s.onEnd(ctx, c, env.Data)
	case EventJoin:
		data, err = s.onJoin(ctx, c, env.Data)
	case EventSDPOffer:
		data, err = s.onSDP(ctx, c, calls.SDPOffer, env.Data)
	case EventSDPAnswer:
		data, err = s.onSDP(ctx, c, calls.SDPAnswer, env.Data)
	case EventICE:
		data, err = s.onICE(c, env.Data)
	case EventStats:
		data, err = s.onStats(ctx, c, env.Data)
	default:
		err = errUnknownEvent
	}
	s.replyTo(c, env.Event, env.Ref, data, err)
}

func (s *Server) replyTo(c *Conn, event, ref string, data any, err error) {
	res := Result{OK: err == nil, Data: data}
	if err != nil {
		res.Error = errorCode(event, err)
		res.Data = nil
	}
	frame, encErr := encode(event+resultSuffix, ref, res)
	if encErr != nil {
		c.log.Error("encode result failed", "event", event, "err", encErr)
		return
	}
	c.enqueue(frame)
}

func errorCode(event string, err error) string {
	switch {
	case errors.Is(err, errMalformed):
		return "malformed"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	case event == EventAccept && errors.Is(err, calls.ErrConflict):
		// Lost the race: the invite is simply gone.
		return "dismissed"
	}
	return coordinator.Code(err)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, coordinator.ErrInvalidRequest
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, coordinator.ErrInvalidRequest
	}
	return v, nil
}

func isStaff(role string) bool { return rbac.Allows(role, rbac.RoleStaff) }

func (s *Server) onInitiate(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	if !rbac.Allows(c.identity.Role, rbac.RoleClient) {
		return nil, coordinator.ErrUnauthorized
	}
	in, err := decode[initiateData](raw)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.Initiate(ctx, coordinator.InitiateRequest{
		ClientID:      c.identity.UserID,
		OrgID:         c.identity.OrgID,
		TargetStaffID: in.TargetStaffID,
		Department:    in.Department,
		Purpose:       in.Purpose,
		ClientName:    in.ClientName,
		Skills:        in.Skills,
	})
	if err != nil {
		return nil, err
	}
	s.hub.join(c, coordinator.CallRoom(res.CallID))
	return res, nil
}

func statusOf(call calls.Call) map[string]any {
	return map[string]any{"callId": call.ID, "status": call.Status}
}

func (s *Server) onAccept(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	if !isStaff(c.identity.Role) {
		return nil, coordinator.ErrUnauthorized
	}
	in, err := decode[actionData](raw)
	if err != nil {
		return nil, err
	}
	call, err := s.coord.Accept(ctx, in.CallID, c.identity)
	if err != nil {
		return nil, err
	}
	s.hub.join(c, coordinator.CallRoom(call.ID))
	return statusOf(call), nil
}

func (s *Server) onDecline(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	if !isStaff(c.identity.Role) {
		return nil, coordinator.ErrUnauthorized
	}
	in, err := decode[actionData](raw)
	if err != nil {
		return nil, err
	}
	call, err := s.coord.Decline(ctx, in.CallID, c.identity, in.Reason)
	if err != nil {
		return nil, err
	}
	return statusOf(call), nil
}

func (s *Server) onCancel(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	in, err := decode[actionData](raw)
	if err != nil {
		return nil, err
	}
	call, err := s.coord.Cancel(ctx, in.CallID, c.identity.UserID, in.Reason)
	if err != nil {
		return nil, err
	}
	return statusOf(call), nil
}

func (s *Server) onEnd(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	in, err := decode[actionData](raw)
	if err != nil {
		return nil, err
	}
	call, err := s.coord.End(ctx, in.CallID, c.identity.UserID, in.Reason)
	if err != nil {
		return nil, err
	}
	return statusOf(call), nil
}

// onJoin subscribes the connection to the call room and replays stored
// session descriptions so a late joiner can complete negotiation.
func (s *Server) onJoin(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	in, err := decode[actionData](raw)
	if err != nil {
		return nil, err
	}
	role := calls.ParticipantStaff
	if c.identity.Role == rbac.RoleClient {
		role = calls.ParticipantClient
	}
	res, err := s.coord.Join(ctx, in.CallID, c.identity.UserID, role)
	if err != nil {
		return nil, err
	}
	s.hub.join(c, coordinator.CallRoom(in.CallID))

	for _, sd := range []*calls.SessionDescription{res.Call.Offer, res.Call.Answer} {
		if sd == nil {
			continue
		}
		frame, err := encode("sdp:"+string(sd.Type), "", sdpRelay{CallID: in.CallID, Type: string(sd.Type), SDP: sd.SDP})
		if err == nil {
			c.enqueue(frame)
		}
	}
	return res, nil
}

func (s *Server) onSDP(ctx context.Context, c *Conn, typ calls.SDPType, raw json.RawMessage) (any, error) {
	in, err := decode[sdpData](raw)
	if err != nil {
		return nil, err
	}
	sd := calls.SessionDescription{SchemaVersion: calls.SessionDescriptionSchemaVersion, Type: typ, SDP: in.SDP}
	if _, err := s.coord.RecordSessionDescription(ctx, in.CallID, c.identity.UserID, sd); err != nil {
		return nil, err
	}
	relayed := s.hub.EmitExcept(coordinator.CallRoom(in.CallID), "sdp:"+string(typ),
		sdpRelay{CallID: in.CallID, From: c.identity.UserID, Type: string(typ), SDP: in.SDP}, c)
	return map[string]any{"relayed": relayed}, nil
}

// onICE relays candidates verbatim. They are never stored.
func (s *Server) onICE(c *Conn, raw json.RawMessage) (any, error) {
	in, err := decode[iceData](raw)
	if err != nil {
		return nil, err
	}
	room := coordinator.CallRoom(in.CallID)
	if !s.hub.inRoom(c, room) {
		return nil, coordinator.ErrUnauthorized
	}
	relayed := s.hub.EmitExcept(room, EventICE, iceRelay{CallID: in.CallID, From: c.identity.UserID, Candidate: in.Candidate}, c)
	return map[string]any{"relayed": relayed}, nil
}

func (s *Server) onStats(ctx context.Context, c *Conn, raw json.RawMessage) (any, error) {
	in, err := decode[statsData](raw)
	if err != nil {
		return nil, err
	}
	err = s.coord.RecordQuality(ctx, in.CallID, c.identity.UserID, calls.QualitySample{
		At:         in.At,
		BitrateBps: in.BitrateBps,
		PacketLoss: in.PacketLoss,
		JitterMs:   in.JitterMs,
		RTTMs:      in.RTTMs,
	})
	return nil, err
}
