package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"checkin/pkg/proto"
	"checkin/pkg/utterance"
)

// AncillaryCatalogue offers purchasable ancillaries. When something is
// available for purchase the turn always stays with the user.
type AncillaryCatalogue struct {
	*base
}

// NewAncillaryCatalogue builds the ancillary-catalogue handler.
func NewAncillaryCatalogue(deps Deps) (Handler, error) {
	b, err := newBase(deps, proto.StageAncillarySelection, []string{proto.ToolAncillaryCatalogue}, true)
	if err != nil {
		return nil, err
	}
	return &AncillaryCatalogue{base: b}, nil
}

// HandleStage implements Handler.
func (h *AncillaryCatalogue) HandleStage(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	start := time.Now()

	_, obj, err := h.run(ctx, goal)
	if err != nil {
		return observe(h.stage, start, h.fail(err))
	}

	ancillaries := objSlice(obj, "ancillaries")
	resp := &proto.StageResponse{
		SessionID: session.SessionID,
		Stage:     h.stage,
		Data: map[string]any{
			"hasAncillaryForPurchase": objBool(obj, "hasAncillaryForPurchase"),
			"ancillaries":             ancillaries,
		},
	}

	if !objBool(obj, "hasAncillaryForPurchase") {
		resp.Status = proto.StatusSuccess
		resp.UserMessage = objString(obj, "userMessage")
		if resp.UserMessage == "" {
			resp.UserMessage = "There are no ancillary products available for purchase. Have a pleasant flight!"
		}
		return observe(h.stage, start, resp)
	}

	// A purchasable catalogue always hands the turn back to the user.
	resp.Status = proto.StatusUserInputRequired
	resp.Continue = false
	if utterance.IsConfirming(goal) {
		resp.UserMessage = paymentPrompt(ancillaries)
	} else {
		resp.UserMessage = purchasePrompt(ancillaries)
	}
	return observe(h.stage, start, resp)
}

// paymentPrompt pulls amount and currency from the first populated detail
// block in the catalogue.
func paymentPrompt(ancillaries []any) string {
	for _, entry := range ancillaries {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		details := objMap(item, "details")
		if details == nil {
			continue
		}
		amount, hasAmount := details["amount"]
		currency := objString(details, "currency")
		if hasAmount && currency != "" {
			return fmt.Sprintf("Your total is %v %s. Do you want to proceed with payment?", amount, currency)
		}
	}
	return "Do you want to proceed with payment?"
}

// purchasePrompt lists the friendly service names on offer.
func purchasePrompt(ancillaries []any) string {
	var names []string
	for _, entry := range ancillaries {
		if item, ok := entry.(map[string]any); ok {
			if name := objString(item, "friendlyName", "name"); name != "" {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return "Do you want to purchase any ancillary products?"
	}
	return fmt.Sprintf("Do you want to purchase %s?", strings.Join(names, ", "))
}
