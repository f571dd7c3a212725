package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"checkin/pkg/proto"
)

// DefaultMountPath is where the tools server exposes its MCP endpoint.
const DefaultMountPath = "/mcp-check-in/v1/checkin"

// Config selects the live backend; an empty BaseURL serves fixtures only.
type Config struct {
	BaseURL string
	Headers map[string]string
}

type tripArgs struct {
	FrequentFlyerNumber string `json:"frequentFlyerNumber,omitempty"`
	UseMock             bool   `json:"useMock,omitempty"`
}

type journeyArgs struct {
	BookingReference string `json:"bookingReference"`
	LastName         string `json:"lastName"`
	UseMock          bool   `json:"useMock,omitempty"`
}

type validateArgs struct {
	BookingReference string `json:"bookingReference"`
	JourneyID        string `json:"journeyId,omitempty"`
	UseMock          bool   `json:"useMock,omitempty"`
}

type acceptanceArgs struct {
	BookingReference string `json:"bookingReference"`
	TravelerID       string `json:"travelerId,omitempty"`
	JourneyElementID string `json:"journeyElementId,omitempty"`
	UseMock          bool   `json:"useMock,omitempty"`
}

type boardingPassArgs struct {
	BookingReference string `json:"bookingReference"`
	TravelerID       string `json:"travelerId,omitempty"`
	JourneyElementID string `json:"journeyElementId,omitempty"`
	UseMock          bool   `json:"useMock,omitempty"`
}

type regulatoryArgs struct {
	BookingReference string `json:"bookingReference"`
	Nationality      string `json:"nationality,omitempty"`
	PassportNumber   string `json:"passportNumber,omitempty"`
	UseMock          bool   `json:"useMock,omitempty"`
}

type ancillaryArgs struct {
	BookingReference string `json:"bookingReference"`
	JourneyID        string `json:"journeyId,omitempty"`
	UseMock          bool   `json:"useMock,omitempty"`
}

// NewServer builds the MCP server exposing every check-in tool.
func NewServer(cfg Config) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "checkin-tools", Version: "1.0.0"}, nil)

	register[tripArgs](server, cfg, proto.ToolIdentificationTrip,
		"Look up pending bookings for a frequent flyer number.",
		"/identification/trip", mockTrip)
	register[journeyArgs](server, cfg, proto.ToolIdentificationJourney,
		"Identify the journey to check in from a booking reference and last name.",
		"/identification/journey", mockJourney)
	register[validateArgs](server, cfg, proto.ToolValidateCheckin,
		"Validate check-in and list the passengers to check in.",
		"/checkin/validate", mockValidate)
	register[acceptanceArgs](server, cfg, proto.ToolCheckinAcceptance,
		"Complete check-in acceptance for a traveler on a journey element.",
		"/checkin/acceptance", mockAcceptance)
	register[boardingPassArgs](server, cfg, proto.ToolBoardingPass,
		"Retrieve the boarding pass for a checked-in traveler.",
		"/checkin/boarding-pass", mockBoardingPass)
	register[regulatoryArgs](server, cfg, proto.ToolRegulatoryDetails,
		"Submit regulatory details and list the required fields still missing.",
		"/regulatory/details", mockRegulatory)
	register[ancillaryArgs](server, cfg, proto.ToolAncillaryCatalogue,
		"Fetch the catalogue of purchasable ancillary products.",
		"/ancillary/catalogue", mockAncillary)

	return server
}

// register wires one typed tool onto the server through the generic adapter.
func register[In any](server *mcp.Server, cfg Config, name, description, path string, mock MockFallback) {
	svc := NewService(name, cfg.BaseURL, cfg.Headers,
		func(args map[string]any) (string, string, any) {
			return "POST", path, args
		}, mock)

	mcp.AddTool(server, &mcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
			args, err := argsToMap(in)
			if err != nil {
				return nil, nil, err
			}
			payload, err := svc.Invoke(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return nil, payload, nil
		})
}

func argsToMap(in any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool arguments: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tool arguments: %w", err)
	}
	return out, nil
}
