package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllStagesMembership(t *testing.T) {
	expected := []Stage{
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
	assert.Equal(t, expected, AllStages())

	for _, stage := range AllStages() {
		assert.True(t, stage.IsValid(), "stage %s should be valid", stage)
	}
	assert.False(t, Stage("NOT_A_STAGE").IsValid())
}

func TestStageStateCoversEveryStage(t *testing.T) {
	s := NewSessionState("s1")
	for _, stage := range AllStages() {
		sub := s.StageState(stage)
		require.NotNil(t, sub, "stage %s has no sub-record", stage)
		assert.Equal(t, StatusNotStarted, sub.Status)
	}
	assert.Nil(t, s.StageState(Stage("NOT_A_STAGE")))
}

func TestApplyResponse(t *testing.T) {
	s := NewSessionState("s1")
	s.ApplyResponse(&StageResponse{
		Stage:       StageJourneyIdentification,
		Status:      StatusSuccess,
		Continue:    true,
		UserMessage: "found it",
	})

	sub := s.StageState(StageJourneyIdentification)
	assert.Equal(t, StatusSuccess, sub.Status)
	assert.True(t, sub.Continue)
	assert.Equal(t, 1, sub.Attempt)
	require.NotNil(t, sub.StartedAtUTC)
	require.NotNil(t, sub.CompletedAtUTC)

	s.ApplyResponse(&StageResponse{Stage: StageJourneyIdentification, Status: StatusFailed})
	assert.Equal(t, 2, sub.Attempt)
	assert.Equal(t, StatusFailed, sub.Status)
}
