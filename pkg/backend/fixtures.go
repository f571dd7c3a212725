package backend

import (
	"fmt"
	"strings"
)

// MockBookingReference is the booking every fixture is keyed by.
const MockBookingReference = "7MHQTY"

// Fixture identifiers reused across responses.
const (
	mockJourneyID        = "JRN-7MHQTY-001"
	mockTravelerID       = "TRV-7MHQTY-001"
	mockJourneyElementID = "JEL-7MHQTY-001"
)

func mockTrip(args map[string]any) (any, error) {
	if ff, _ := args["frequentFlyerNumber"].(string); ff == "" {
		return map[string]any{"pendingBookings": []any{}}, nil
	}
	return map[string]any{
		"pendingBookings": []any{
			map[string]any{"bookingReference": MockBookingReference, "destination": "SIN"},
		},
	}, nil
}

func mockJourney(args map[string]any) (any, error) {
	ref, _ := args["bookingReference"].(string)
	if !strings.EqualFold(ref, MockBookingReference) {
		return map[string]any{
			"error": fmt.Sprintf("No journey found for booking reference %s.", ref),
		}, nil
	}
	return map[string]any{
		"journey": map[string]any{
			"id":                mockJourneyID,
			"origin":            "DEL",
			"destination":       "SIN",
			"departureDateTime": "2026-03-01T08:15:00Z",
			"arrivalDateTime":   "2026-03-01T10:45:00Z",
			"journeyElements": []any{
				map[string]any{"id": mockJourneyElementID, "flightNumber": "SQ403"},
			},
		},
		"traveler": map[string]any{
			"id":        mockTravelerID,
			"firstName": "Asha",
			"lastName":  "Verma",
		},
		"eligibility": map[string]any{"status": "ELIGIBLE"},
	}, nil
}

func mockValidate(map[string]any) (any, error) {
	return map[string]any{
		"passengersToCheckIn": []any{
			map[string]any{
				"travelerId":       mockTravelerID,
				"journeyElementId": mockJourneyElementID,
				"firstName":        "Asha",
				"lastName":         "Verma",
			},
		},
		"prompt": "Confirm check-in for the listed passengers.",
	}, nil
}

func mockAcceptance(map[string]any) (any, error) {
	return map[string]any{
		"isAccepted": true,
		"travelerId": mockTravelerID,
	}, nil
}

func mockBoardingPass(map[string]any) (any, error) {
	return map[string]any{
		"boardingPass": map[string]any{
			"url":  "https://checkin.example.com/bp/" + MockBookingReference,
			"seat": "21A",
			"gate": "B12",
		},
	}, nil
}

func mockRegulatory(args map[string]any) (any, error) {
	var missing []any
	if nationality, _ := args["nationality"].(string); nationality == "" {
		missing = append(missing, "nationality")
	}
	if missing == nil {
		missing = []any{}
	}
	return map[string]any{"requiredFieldsMissing": missing}, nil
}

func mockAncillary(map[string]any) (any, error) {
	return map[string]any{
		"hasAncillaryForPurchase": true,
		"ancillaries": []any{
			map[string]any{
				"friendlyName": "Extra baggage 5kg",
				"details":      map[string]any{"amount": 40, "currency": "SGD"},
			},
			map[string]any{
				"friendlyName": "Seat upgrade",
				"details":      map[string]any{"amount": 25, "currency": "SGD"},
			},
		},
	}, nil
}
