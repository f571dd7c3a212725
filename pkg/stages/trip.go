package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/proto"
)

// TripIdentification looks up the passenger's pending bookings from a
// frequent flyer number.
type TripIdentification struct {
	*base
}

// NewTripIdentification builds the trip-identification handler.
func NewTripIdentification(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageTripIdentification, []string{proto.ToolIdentificationTrip}, true)
	if err != nil {
		return nil, err
	}
	return &TripIdentification{base: b}, nil
}

// HandleStage implements Handler.
func (h *TripIdentification) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}
	if msg := objString(obj, "error", "errorMessage"); msg != "" {
		return observe(h.stage, start, proto.Failed(h.stage, msg))
	}

	var refs []string
	for _, entry := range objSlice(obj, "pendingBookings") {
		switch booking := entry.(type) {
		case string:
			refs = append(refs, booking)
		case map[string]any:
			if ref := objString(booking, "bookingReference", "pnr"); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	session.Data.PendingBookings = refs

	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data:      map[string]any{"pendingBookings": refs},
	}
	if len(refs) == 0 {
		resp.Status = proto.StatusUserInputRequired
		resp.UserMessage = "I could not find any upcoming bookings for that frequent flyer number. Please share your booking reference (PNR) and last name."
		return observe(h.stage, start, resp)
	}

	resp.Status = proto.StatusSuccess
	resp.UserMessage = objString(obj, "userMessage")
	if resp.UserMessage == "" {
		resp.UserMessage = fmt.Sprintf("I found these upcoming bookings: %s. Which booking reference would you like to check in?", strings.Join(refs, ", "))
	}
	return observe(h.stage, start, resp)
}
