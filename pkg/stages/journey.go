package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkin/pkg/agent"
	"checkin/pkg/proto"
	"checkin/pkg/utterance"
)

// JourneyIdentification resolves the journey to check in from a booking
// reference and last name, and summarizes the flight for the passenger.
type JourneyIdentification struct {
	*base
}

// NewJourneyIdentification builds the journey-identification handler.
func NewJourneyIdentification(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageJourneyIdentification, []string{proto.ToolIdentificationJourney}, true)
	if err != nil {
		return nil, err
	}
	return &JourneyIdentification{base: b}, nil
}

// HandleStage implements Handler.
func (h *JourneyIdentification) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	res, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	// The authoritative payload is the last successful journey lookup in the
	// trace; the model's final answer only supplements it.
	payload := lastToolPayload(res.Steps, proto.ToolIdentificationJourney)
	if payload == nil {
		payload = obj
	}

	journey := objMap(payload, "journey")
	traveler := objMap(payload, "traveler")
	eligibility := objMap(payload, "eligibility")

	if id := objString(journey, "id"); id != "" {
		session.Data.JourneyID = id
	}
	if id := objString(traveler, "id"); id != "" {
		session.Data.TravelerID = id
	}

	summary := flightSummary(journey)
	data := map[string]any{
		"journeyId":  session.Data.JourneyID,
		"travelerId": session.Data.TravelerID,
	}
	if summary != nil {
		data["flightSummary"] = summary
	}

	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data:      data,
	}

	errMsg := objString(payload, "error", "errorMessage")
	if errMsg == "" {
		if e := objMap(eligibility, "error"); e != nil {
			errMsg = objString(e, "message", "text")
			if errMsg == "" {
				errMsg = "Your journey is not eligible for check-in."
			}
		}
	}

	switch {
	case errMsg != "":
		resp.Status = proto.StatusUserInputRequired
		resp.UserMessage = errMsg
	case eligibility != nil:
		resp.Status = proto.StatusSuccess
		resp.Continue = true
		resp.UserMessage = summaryMessage(summary)
	default:
		return observe(h.stage, start, proto.Failed(h.stage, "journey lookup returned no eligibility information"))
	}
	return observe(h.stage, start, resp)
}

// lastToolPayload scans the trace for the last successful call of the named
// tool and parses its JSON result.
func lastToolPayload(steps []agent.Step, tool string) map[string]any {
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.Type != "tool_call" || step.Tool != tool || step.IsError || step.Error != "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(step.Result), &payload); err != nil {
			continue
		}
		return payload
	}
	return nil
}

// flightSummary builds the origin/destination/times/duration summary from a
// journey payload. Returns nil when the times are absent or unparseable.
func flightSummary(journey map[string]any) map[string]any {
	depText := objString(journey, "departureDateTime", "departure")
	arrText := objString(journey, "arrivalDateTime", "arrival")
	if depText == "" || arrText == "" {
		return nil
	}
	dep, err := time.Parse(time.RFC3339, depText)
	if err != nil {
		return nil
	}
	arr, err := time.Parse(time.RFC3339, arrText)
	if err != nil {
		return nil
	}
	minutes := utterance.DurationMinutes(dep, arr)
	return map[string]any{
		"origin":          objString(journey, "origin"),
		"destination":     objString(journey, "destination"),
		"departure":       depText,
		"arrival":         arrText,
		"durationMinutes": minutes,
		"durationText":    utterance.FormatDuration(minutes),
	}
}

func summaryMessage(summary map[string]any) string {
	if summary == nil {
		return "I found your journey. Let me validate your check-in."
	}
	return fmt.Sprintf("I found your flight from %v to %v, departing %v (flight time %v). Let me validate your check-in.",
		summary["origin"], summary["destination"], summary["departure"], summary["durationText"])
}
