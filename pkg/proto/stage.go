// Package proto defines the shared types of the check-in conversation protocol:
// stages, per-stage state records, the session aggregate, and the response
// envelope returned to callers.
package proto

// Stage identifies one named step of the check-in conversation.
type Stage string

const (
	StageBeginConversation      Stage = "BEGIN_CONVERSATION"
	StageTripIdentification     Stage = "TRIP_IDENTIFICATION"
	StageJourneyIdentification  Stage = "JOURNEY_IDENTIFICATION"
	StageJourneySelection       Stage = "JOURNEY_SELECTION"
	StageValidateProcessCheckin Stage = "VALIDATE_PROCESS_CHECKIN"
	StageProcessCheckIn         Stage = "PROCESS_CHECK_IN"
	StageCheckinAcceptance      Stage = "CHECKIN_ACCEPTANCE"
	StageBoardingPass           Stage = "BOARDING_PASS"
	StageRegulatoryDetails      Stage = "REGULATORY_DETAILS"
	StageAncillarySelection     Stage = "ANCILLARY_SELECTION"
)

// AllStages lists every stage in conversation order.
func AllStages() []Stage {
	return []Stage{
		StageBeginConversation,
		StageTripIdentification,
		StageJourneyIdentification,
		StageJourneySelection,
		StageValidateProcessCheckin,
		StageProcessCheckIn,
		StageCheckinAcceptance,
		StageBoardingPass,
		StageRegulatoryDetails,
		StageAncillarySelection,
	}
}

// IsValid reports whether s is a member of the stage enum.
func (s Stage) IsValid() bool {
	switch s {
	case StageBeginConversation, StageTripIdentification, StageJourneyIdentification,
		StageJourneySelection, StageValidateProcessCheckin, StageProcessCheckIn,
		StageCheckinAcceptance, StageBoardingPass, StageRegulatoryDetails,
		StageAncillarySelection:
		return true
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// Status is the outcome classification of one stage turn. It is derived from
// the stage agent's structured result, never declared by the model itself, so
// transition decisions stay deterministic.
type Status string

const (
	StatusNotStarted        Status = "NOT_STARTED"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusSuccess           Status = "SUCCESS"
	StatusFailed            Status = "FAILED"
	StatusUserInputRequired Status = "USER_INPUT_REQUIRED"
)

func (s Status) String() string {
	return string(s)
}
