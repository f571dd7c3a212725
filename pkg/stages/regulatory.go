package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/proto"
	"checkin/pkg/utterance"
)

// dangerousGoodsConsent is appended to every missing-field prompt.
const dangerousGoodsConsent = " Also, please confirm that you are not carrying any dangerous goods in your baggage."

// RegulatoryDetails collects the regulatory fields required for the journey,
// mapping spoken nationality words to codes before the agent sees the goal.
type RegulatoryDetails struct {
	*base
}

// NewRegulatoryDetails builds the regulatory-details handler.
func NewRegulatoryDetails(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageRegulatoryDetails, []string{proto.ToolRegulatoryDetails}, true)
	if err != nil {
		return nil, err
	}
	return &RegulatoryDetails{base: b}, nil
}

// HandleStage implements Handler.
func (h *RegulatoryDetails) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, utterance.MapNationalities(goal))
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	var missing []string
	for _, field := range objSlice(obj, "requiredFieldsMissing") {
		if name, ok := field.(string); ok && name != "" {
			missing = append(missing, name)
		}
	}
	// The missing list is persisted whether or not the turn advances.
	session.Data.RequiredRegulatoryFields = missing

	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data:      map[string]any{"requiredFieldsMissing": missing},
	}
	if len(missing) == 0 {
		resp.Status = proto.StatusSuccess
		resp.Continue = true
		resp.UserMessage = objString(obj, "userMessage")
		if resp.UserMessage == "" {
			resp.UserMessage = "Your regulatory details are complete."
		}
		return observe(h.stage, start, resp)
	}

	var msg strings.Builder
	if utterance.IsConfirming(goal) {
		msg.WriteString("Thanks for confirming. ")
	}
	msg.WriteString(fieldPrompt(missing[0]))
	msg.WriteString(dangerousGoodsConsent)

	resp.Status = proto.StatusUserInputRequired
	resp.UserMessage = msg.String()
	return observe(h.stage, start, resp)
}

func fieldPrompt(field string) string {
	if strings.EqualFold(field, "nationality") {
		return "Please tell me your nationality, for example Indian or Singaporean."
	}
	return fmt.Sprintf("Please provide your %s.", field)
}
