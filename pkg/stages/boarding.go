package stages

import (
	"context"
	"time"

	"checkin/pkg/proto"
)

// BoardingPass fetches the passenger's boarding pass and offers ancillaries
// as the next step.
type BoardingPass struct {
	*base
}

// NewBoardingPass builds the boarding-pass handler.
func NewBoardingPass(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageBoardingPass, []string{proto.ToolBoardingPass}, true)
	if err != nil {
		return nil, err
	}
	return &BoardingPass{base: b}, nil
}

// HandleStage implements Handler.
func (h *BoardingPass) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	pass := objMap(obj, "boardingPass")
	url := objString(obj, "boardingPassUrl", "url")
	if url == "" && pass != nil {
		url = objString(pass, "url")
	}
	if pass == nil && url == "" {
		msg := objString(obj, "error", "errorMessage")
		if msg == "" {
			msg = "I could not retrieve your boarding pass."
		}
		return observe(h.stage, start, proto.Failed(h.stage, msg))
	}

	message := "Here is your boarding pass."
	if url != "" {
		message = "Here is your boarding pass: " + url
	}
	message += " Would you like to see ancillary offers, such as extra baggage or seat upgrades?"

	resp := &proto.StageResponse{
		SessionID:   session.SessionID,
		Stage:       h.stage,
		Status:      proto.StatusUserInputRequired,
		UserMessage: message,
		Data: map[string]any{
			"boardingPass":    pass,
			"boardingPassUrl": url,
		},
	}
	return observe(h.stage, start, resp)
}
