package stages

import (
	"context"
	"time"

	"checkin/pkg/proto"
)

// CheckinAcceptance completes the acceptance step and surfaces whether the
// passenger was accepted.
type CheckinAcceptance struct {
	*base
}

// NewCheckinAcceptance builds the checkin-acceptance handler.
func NewCheckinAcceptance(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageCheckinAcceptance, []string{proto.ToolCheckinAcceptance}, true)
	if err != nil {
		return nil, err
	}
	return &CheckinAcceptance{base: b}, nil
}

// HandleStage implements Handler.
func (h *CheckinAcceptance) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	accepted := objBool(obj, "isAccepted")
	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data:      map[string]any{"isAccepted": accepted},
	}
	if accepted {
		resp.Status = proto.StatusSuccess
		resp.Continue = true
		resp.UserMessage = objString(obj, "userMessage")
		if resp.UserMessage == "" {
			resp.UserMessage = "You are checked in. Would you like your boarding pass?"
		}
		return observe(h.stage, start, resp)
	}

	if msg := objString(obj, "error", "errorMessage"); msg != "" {
		return observe(h.stage, start, proto.Failed(h.stage, msg))
	}
	resp.Status = proto.StatusUserInputRequired
	resp.UserMessage = objString(obj, "userMessage")
	if resp.UserMessage == "" {
		resp.UserMessage = "I could not complete your check-in acceptance yet. Do you want me to try again?"
	}
	return observe(h.stage, start, resp)
}
