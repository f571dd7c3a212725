package config

import "checkin/pkg/proto"

// defaultNotesTemplate renders computed tool results back to the model.
const defaultNotesTemplate = "Results computed so far:\n{notes}\nUse them to finish the task."

// defaultPrompts is the sample prompt set used only when
// CHECKIN_BUILTIN_PROMPTS=1 opts in (development and tests). Production
// deployments provide every stage's prompts via CHECKIN_<STAGE>_* environment
// variables, which always win over these.
var defaultPrompts = map[proto.Stage]StagePrompts{
	proto.StageBeginConversation: {
		System: "You are an airline check-in assistant greeting a passenger. " +
			"Extract any identification details the passenger already gave: " +
			"frequentFlyerCardNumber, lastName, bookingReference. " +
			"Reply with a JSON object containing the fields you found and a short greeting in userMessage.",
		Continue:      "Continue. Reply with the JSON object described in the instructions.",
		NotesTemplate: defaultNotesTemplate,
	},
	proto.StageTripIdentification: {
		System: "You identify the passenger's trip. Use the trip identification tool with the " +
			"frequent flyer card number from the goal, then reply with a JSON object summarizing " +
			"the pending bookings found.",
		Continue:      "Use the computed results to produce the final JSON summary of pending bookings.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageJourneyIdentification: {
		System: "You identify the passenger's journey for check-in. Call the journey identification " +
			"tool with the booking reference and last name from the goal, then reply with a JSON " +
			"object carrying the journey, traveler and eligibility details exactly as returned.",
		Continue:      "Use the computed results to produce the final JSON object with journey, traveler and eligibility details.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageJourneySelection: {
		System: "You help the passenger pick one journey from the candidates in the goal. " +
			"Reply with a JSON object naming the selected journey.",
		Continue:      "Reply with the JSON object naming the selected journey.",
		NotesTemplate: defaultNotesTemplate,
	},
	proto.StageValidateProcessCheckin: {
		System: "You validate the passenger's check-in. Call the check-in validation tool for the " +
			"journey in the goal, then reply with a JSON object listing passengersToCheckIn and a " +
			"prompt asking for confirmation.",
		Continue:      "Use the computed results to produce the final JSON object with passengersToCheckIn and prompt.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageProcessCheckIn: {
		System:        "You process the passenger's check-in and reply with a JSON status object.",
		Continue:      "Reply with the JSON status object.",
		NotesTemplate: defaultNotesTemplate,
	},
	proto.StageCheckinAcceptance: {
		System: "You complete check-in acceptance. Call the acceptance tool for the traveler and " +
			"journey element in the goal, then reply with a JSON object including isAccepted.",
		Continue:      "Use the computed results to produce the final JSON object including isAccepted.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageBoardingPass: {
		System: "You deliver the passenger's boarding pass. Call the boarding pass tool, then reply " +
			"with a JSON object carrying the boarding pass payload or URL.",
		Continue:      "Use the computed results to produce the final JSON object with the boarding pass.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageRegulatoryDetails: {
		System: "You collect regulatory details required for travel. Call the regulatory details tool " +
			"with any details present in the goal, then reply with a JSON object including " +
			"requiredFieldsMissing for anything still outstanding.",
		Continue:      "Use the computed results to produce the final JSON object including requiredFieldsMissing.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
	proto.StageAncillarySelection: {
		System: "You offer ancillary products. Call the ancillary catalogue tool, then reply with a " +
			"JSON object including hasAncillaryForPurchase and the catalogue details.",
		Continue:      "Use the computed results to produce the final JSON object with the ancillary catalogue.",
		NotesTemplate: defaultNotesTemplate,
		ToolChoice:    "required",
	},
}
