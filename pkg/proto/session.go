package proto

import "time"

// StageError carries a structured error surfaced from a stage turn.
type StageError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// BaseState is the common per-stage sub-record. Status and Continue are
// assigned by stage post-processing; Continue tells the orchestrator whether
// it may auto-advance.
type BaseState struct {
	Status         Status      `json:"status"`
	Continue       bool        `json:"continue"`
	UpdatedAtUTC   time.Time   `json:"updatedAtUtc"`
	StartedAtUTC   *time.Time  `json:"startedAtUtc,omitempty"`
	CompletedAtUTC *time.Time  `json:"completedAtUtc,omitempty"`
	LastEventID    string      `json:"lastEventId,omitempty"`
	Attempt        int         `json:"attempt"`
	Error          *StageError `json:"error,omitempty"`
	UserMessage    string      `json:"userMessage,omitempty"`
}

// SessionData holds the cross-stage facts extracted during the conversation.
// Each field names which upstream stage produces it; Extra is the generic
// escape hatch for genuinely stage-agnostic values.
type SessionData struct {
	BookingReference         string   `json:"bookingReference,omitempty"`
	LastName                 string   `json:"lastName,omitempty"`
	FrequentFlyerNumber      string   `json:"frequentFlyerNumber,omitempty"`
	JourneyID                string   `json:"journeyId,omitempty"`
	TravelerID               string   `json:"travelerId,omitempty"`
	JourneyElementID         string   `json:"journeyElementId,omitempty"`
	UseMock                  bool     `json:"useMock,omitempty"`
	PendingBookings          []string `json:"pendingBookings,omitempty"`
	RequiredRegulatoryFields []string `json:"requiredRegulatoryFields,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// SessionState is the root aggregate, one per conversation session.
type SessionState struct {
	SessionID    string `json:"sessionId"`
	CurrentStage Stage  `json:"currentStage"`

	BeginConversation      BaseState `json:"beginConversation"`
	TripIdentification     BaseState `json:"tripIdentificationState"`
	JourneyIdentification  BaseState `json:"journeyIdentificationState"`
	JourneySelection       BaseState `json:"journeySelectionState"`
	ValidateProcessCheckIn BaseState `json:"validateProcessCheckInState"`
	ProcessCheckIn         BaseState `json:"processCheckInState"`
	CheckinAcceptance      BaseState `json:"checkinAcceptanceState"`
	BoardingPass           BaseState `json:"boardingPassState"`
	RegulatoryDetails      BaseState `json:"regulatoryDetailsState"`
	AncillarySelection     BaseState `json:"ancillarySelectionState"`

	Data SessionData `json:"data"`
}

// NewSessionState creates a fresh session parked at BEGIN_CONVERSATION.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now().UTC()
	s := &SessionState{
		SessionID:    sessionID,
		CurrentStage: StageBeginConversation,
	}
	for _, stage := range AllStages() {
		sub := s.StageState(stage)
		sub.Status = StatusNotStarted
		sub.UpdatedAtUTC = now
	}
	return s
}

// StageState returns a pointer to the sub-record for the given stage, or nil
// for an unknown stage.
func (s *SessionState) StageState(stage Stage) *BaseState {
	switch stage {
	case StageBeginConversation:
		return &s.BeginConversation
	case StageTripIdentification:
		return &s.TripIdentification
	case StageJourneyIdentification:
		return &s.JourneyIdentification
	case StageJourneySelection:
		return &s.JourneySelection
	case StageValidateProcessCheckin:
		return &s.ValidateProcessCheckIn
	case StageProcessCheckIn:
		return &s.ProcessCheckIn
	case StageCheckinAcceptance:
		return &s.CheckinAcceptance
	case StageBoardingPass:
		return &s.BoardingPass
	case StageRegulatoryDetails:
		return &s.RegulatoryDetails
	case StageAncillarySelection:
		return &s.AncillarySelection
	}
	return nil
}

// ApplyResponse merges a stage turn's outcome into the matching sub-record.
func (s *SessionState) ApplyResponse(resp *StageResponse) {
	sub := s.StageState(resp.Stage)
	if sub == nil {
		return
	}
	now := time.Now().UTC()
	if sub.Status == StatusNotStarted {
		started := now
		sub.StartedAtUTC = &started
	}
	sub.Status = resp.Status
	sub.Continue = resp.Continue
	sub.UserMessage = resp.UserMessage
	sub.Error = resp.Error
	sub.Attempt++
	sub.UpdatedAtUTC = now
	if resp.Status == StatusSuccess {
		completed := now
		sub.CompletedAtUTC = &completed
	}
}

// StageResponse is the normalized envelope produced per turn and returned to
// the caller.
type StageResponse struct {
	SessionID   string         `json:"sessionId"`
	Stage       Stage          `json:"stage"`
	Status      Status         `json:"status"`
	Continue    bool           `json:"continue"`
	UserMessage string         `json:"userMessage,omitempty"`
	Error       *StageError    `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Failed builds a FAILED response for the given stage with the error message
// surfaced in both the error record and the user message.
func Failed(stage Stage, message string) *StageResponse {
	return &StageResponse{
		Stage:       stage,
		Status:      StatusFailed,
		UserMessage: message,
		Error:       &StageError{Message: message},
	}
}

// UserInput builds a USER_INPUT_REQUIRED response prompting the user.
func UserInput(stage Stage, prompt string) *StageResponse {
	return &StageResponse{
		Stage:       stage,
		Status:      StatusUserInputRequired,
		UserMessage: prompt,
	}
}
