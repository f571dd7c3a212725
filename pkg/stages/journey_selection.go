package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/proto"
)

// JourneySelection is a leaf stage: it echoes the selection state and asks
// the passenger to pick a booking. No model or tool calls, so repeated turns
// with the same state produce the same response.
type JourneySelection struct {
	stage proto.Stage
}

// NewJourneySelection builds the journey-selection handler.
func NewJourneySelection(deps Deps) (Handler, error) {
	if _, err := deps.Cfg.StagePrompts(proto.StageJourneySelection); err != nil {
		return nil, err
	}
	return &JourneySelection{stage: proto.StageJourneySelection}, nil
}

// Stage implements Handler.
func (h *JourneySelection) Stage() proto.Stage {
	return h.stage
}

// HandleStage implements Handler.
func (h *JourneySelection) HandleStage(_ context.Context, session *proto.SessionState, _ string) *proto.StageResponse {
	start := time.Now()

	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Status:    proto.StatusUserInputRequired,
		Data: map[string]any{
			"pendingBookings":  session.Data.PendingBookings,
			"bookingReference": session.Data.BookingReference,
		},
	}
	if len(session.Data.PendingBookings) > 0 {
		resp.UserMessage = fmt.Sprintf("Which booking would you like to check in? Your upcoming bookings: %s.",
			strings.Join(session.Data.PendingBookings, ", "))
	} else {
		resp.UserMessage = "Please share the booking reference (PNR) of the journey you want to check in."
	}
	return observe(h.stage, start, resp)
}
