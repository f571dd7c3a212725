package stages

import (
	"context"
	"time"

	"checkin/pkg/proto"
	"checkin/pkg/utterance"
)

// BeginConversation greets the passenger and extracts identification fields
// from the opening utterance. It runs without any tools.
type BeginConversation struct {
	*base
}

// NewBeginConversation builds the begin-conversation handler.
func NewBeginConversation(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageBeginConversation, []string{}, false)
	if err != nil {
		return nil, err
	}
	return &BeginConversation{base: b}, nil
}

// HandleStage implements Handler.
func (h *BeginConversation) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	// Model extraction first, direct utterance parse as backstop.
	ff := objString(obj, "frequentFlyerCardNumber", "frequentFlyerNumber")
	if ff == "" {
		ff = utterance.FindFrequentFlyerNumber(goal)
	}
	lastName := objString(obj, "lastName")
	if lastName == "" {
		lastName = utterance.FindLastName(goal)
	}
	pnr := objString(obj, "bookingReference", "pnr")
	if pnr == "" {
		pnr = utterance.FindBookingReference(goal)
	}

	if ff != "" {
		session.Data.FrequentFlyerNumber = ff
	}
	if lastName != "" {
		session.Data.LastName = lastName
	}
	if pnr != "" {
		session.Data.BookingReference = pnr
	}

	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data: map[string]any{
			"frequentFlyerNumber": ff,
			"lastName":            lastName,
			"bookingReference":    pnr,
		},
	}
	if ff != "" || pnr != "" {
		resp.Status = proto.StatusSuccess
		resp.Continue = true
		resp.UserMessage = objString(obj, "userMessage")
		if resp.UserMessage == "" {
			resp.UserMessage = "Welcome! Let me look up your booking."
		}
	} else {
		resp.Status = proto.StatusUserInputRequired
		resp.UserMessage = objString(obj, "userMessage")
		if resp.UserMessage == "" {
			resp.UserMessage = "Welcome to check-in. Please share your booking reference (PNR) and last name, or your frequent flyer number."
		}
	}
	return observe(h.stage, start, resp)
}
