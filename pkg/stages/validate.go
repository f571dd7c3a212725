package stages

import (
	"context"
	"fmt"
	"time"

	"checkin/pkg/proto"
)

// ValidateProcessCheckin validates the check-in and asks the passenger to
// confirm each passenger found on the journey.
type ValidateProcessCheckin struct {
	*base
}

// NewValidateProcessCheckin builds the validate-process-checkin handler.
func NewValidateProcessCheckin(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageValidateProcessCheckin, []string{proto.ToolValidateCheckin}, true)
	if err != nil {
		return nil, err
	}
	return &ValidateProcessCheckin{base: b}, nil
}

// HandleStage implements Handler.
func (h *ValidateProcessCheckin) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	passengers := objSlice(obj, "passengersToCheckIn")
	prompt := objString(obj, "prompt")
	if len(passengers) == 0 || prompt == "" {
		msg := objString(obj, "error", "errorMessage")
		if msg == "" {
			msg = "I could not validate any passengers for check-in on this journey."
		}
		return observe(h.stage, start, proto.Failed(h.stage, msg))
	}

	first, _ := passengers[0].(map[string]any)
	if id := objString(first, "travelerId", "id"); id != "" {
		session.Data.TravelerID = id
	}
	if id := objString(first, "journeyElementId"); id != "" {
		session.Data.JourneyElementID = id
	}

	// Prefer a personalized confirmation over the backend's raw prompt.
	message := prompt
	firstName := objString(first, "firstName")
	lastName := objString(first, "lastName")
	if lastName == "" {
		lastName = session.Data.LastName
	}
	if firstName != "" && lastName != "" {
		message = fmt.Sprintf("Do you want to check in this passenger: %s %s?", firstName, lastName)
	}

	resp := &proto.StageResponse{
		SessionID:   session.SessionID,
		Stage:       h.stage,
		Status:      proto.StatusUserInputRequired,
		UserMessage: message,
		Data: map[string]any{
			"passengersToCheckIn": passengers,
			"travelerId":          session.Data.TravelerID,
			"journeyElementId":    session.Data.JourneyElementID,
		},
	}
	return observe(h.stage, start, resp)
}
