package orch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/pkg/agent/llm"
	"checkin/pkg/config"
	"checkin/pkg/gateway"
	"checkin/pkg/proto"
	"checkin/pkg/stages"
	"checkin/pkg/state"
)

type fakeBroker struct {
	results map[string]string
	calls   []string
}

func (f *fakeBroker) ChatModelTools(context.Context) ([]gateway.ToolSchema, error) {
	var tools []gateway.ToolSchema
	for name := range f.results {
		tools = append(tools, gateway.ToolSchema{Name: name, Parameters: map[string]any{"type": "object"}})
	}
	return tools, nil
}

func (f *fakeBroker) CallTool(_ context.Context, name string, _ map[string]any) (*gateway.Envelope, error) {
	f.calls = append(f.calls, name)
	result, ok := f.results[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrToolNotFound, name)
	}
	return &gateway.Envelope{Content: []gateway.ContentItem{{Type: "text", Text: result}}}, nil
}

const journeyFixture = `{"journey":{"id":"JRN-1","origin":"DEL","destination":"SIN",` +
	`"departureDateTime":"2026-03-01T08:15:00Z","arrivalDateTime":"2026-03-01T10:45:00Z"},` +
	`"traveler":{"id":"TRV-1","firstName":"Asha","lastName":"Verma"},` +
	`"eligibility":{"status":"ELIGIBLE"}}`

const validateFixture = `{"passengersToCheckIn":[{"travelerId":"TRV-1","journeyElementId":"JEL-1",` +
	`"firstName":"Asha","lastName":"Verma"}],"prompt":"Confirm check-in."}`

func newTestOrchestrator(t *testing.T, broker *fakeBroker, client *llm.MockClient) (*Orchestrator, state.Store) {
	t.Helper()
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "1")
	cfg, err := config.Load()
	require.NoError(t, err)
	handlers, err := stages.NewHandlers(stages.Deps{Broker: broker, Client: client, Cfg: cfg})
	require.NoError(t, err)
	store := state.NewMemoryStore()
	return New(store, handlers, time.Hour, 0), store
}

func TestFirstTurnMintsSessionWithoutRunningStages(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	client := llm.NewMockClient()
	o, store := newTestOrchestrator(t, broker, client)

	resp, err := o.Run(context.Background(), "hello, I want to check in", "")
	require.NoError(t, err)

	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Equal(t, proto.StageBeginConversation, resp.Stage)
	require.NotEmpty(t, resp.SessionID)
	_, parseErr := uuid.Parse(resp.SessionID)
	assert.NoError(t, parseErr)

	// No model or backend traffic on the mint turn.
	assert.Empty(t, broker.calls)
	assert.Empty(t, client.Requests())

	session, found, err := store.Get(resp.SessionID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, proto.StageBeginConversation, session.CurrentStage)
}

func TestUnknownSessionIDMintsFreshSession(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	o, _ := newTestOrchestrator(t, broker, llm.NewMockClient())

	resp, err := o.Run(context.Background(), "hi", "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.NotEqual(t, "does-not-exist", resp.SessionID)
}

func TestJourneyGateNamesMissingFields(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	client := llm.NewMockClient()
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-gate")
	session.CurrentStage = proto.StageJourneyIdentification
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "I want to check in", "s-gate")
	require.NoError(t, err)

	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Contains(t, resp.UserMessage, "PNR/bookingReference")
	assert.Contains(t, resp.UserMessage, "lastName")
	assert.Empty(t, broker.calls)
	assert.Empty(t, client.Requests())
}

func TestTripBypassAndMockStickiness(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{
		proto.ToolIdentificationJourney: journeyFixture,
		proto.ToolValidateCheckin:       validateFixture,
	}}
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolIdentificationJourney, Arguments: `{"bookingReference":"7MHQTY","lastName":"Verma"}`}}},
		llm.Response{OutputText: "{}"},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c2", Name: proto.ToolValidateCheckin, Arguments: `{"bookingReference":"7MHQTY"}`}}},
		llm.Response{OutputText: validateFixture},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-mock")
	session.CurrentStage = proto.StageTripIdentification
	session.Data.LastName = "Verma"
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "My PNR is 7MHQTY", "s-mock")
	require.NoError(t, err)

	// The PNR bypassed the trip lookup, the journey resolved, and the turn
	// parked on the validation confirmation.
	assert.Equal(t, proto.StageValidateProcessCheckin, resp.Stage)
	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Equal(t, "Do you want to check in this passenger: Asha Verma?", resp.UserMessage)
	assert.Equal(t, []string{proto.ToolIdentificationJourney, proto.ToolValidateCheckin}, broker.calls)

	stored, found, err := store.Get("s-mock")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, proto.StageValidateProcessCheckin, stored.CurrentStage)
	assert.True(t, stored.Data.UseMock)
	assert.Equal(t, "7MHQTY", stored.Data.BookingReference)
	assert.Equal(t, "JRN-1", stored.Data.JourneyID)
	assert.Equal(t, "TRV-1", stored.Data.TravelerID)
	assert.Equal(t, "JEL-1", stored.Data.JourneyElementID)

	// Mock mode stays on for later turns that never mention the PNR.
	client.Enqueue(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c3", Name: proto.ToolValidateCheckin, Arguments: `{}`}}},
		llm.Response{OutputText: validateFixture},
	)
	_, err = o.Run(context.Background(), "what happens next", "s-mock")
	require.NoError(t, err)
	stored, _, err = store.Get("s-mock")
	require.NoError(t, err)
	assert.True(t, stored.Data.UseMock)
}

func TestJourneyErrorSurfacedVerbatim(t *testing.T) {
	const lookupError = `{"error":"No journey found for booking reference AB12CD."}`
	broker := &fakeBroker{results: map[string]string{proto.ToolIdentificationJourney: lookupError}}
	client := llm.NewMockClient(
		llm.Response{OutputText: `{"lastName":"Verma","bookingReference":"AB12CD"}`},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolIdentificationJourney, Arguments: `{}`}}},
		llm.Response{OutputText: "{}"},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-err")
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "my last name is Verma, booking reference AB12CD", "s-err")
	require.NoError(t, err)

	assert.Equal(t, proto.StageJourneyIdentification, resp.Stage)
	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Equal(t, "No journey found for booking reference AB12CD.", resp.UserMessage)
}

func TestLeafStageIsIdempotent(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	client := llm.NewMockClient()
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-leaf")
	session.CurrentStage = proto.StageJourneySelection
	session.Data.PendingBookings = []string{"7MHQTY", "AB12CD"}
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	first, err := o.Run(context.Background(), "hmm", "s-leaf")
	require.NoError(t, err)
	second, err := o.Run(context.Background(), "hmm", "s-leaf")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.UserMessage, second.UserMessage)
	assert.Equal(t, first.Data, second.Data)
	assert.Empty(t, client.Requests())

	stored, _, err := store.Get("s-leaf")
	require.NoError(t, err)
	assert.Equal(t, proto.StageJourneySelection, stored.CurrentStage)
}

func TestUnconfiguredStageFails(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	o, store := newTestOrchestrator(t, broker, llm.NewMockClient())

	session := proto.NewSessionState("s-none")
	session.CurrentStage = proto.StageProcessCheckIn
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "go on", "s-none")
	require.NoError(t, err)
	assert.Equal(t, proto.StatusFailed, resp.Status)
	assert.Equal(t, "no orchestrator configured", resp.UserMessage)
}

func TestValidateConfirmationAdvancesToRegulatory(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{
		proto.ToolValidateCheckin:    validateFixture,
		proto.ToolRegulatoryDetails:  `{"requiredFieldsMissing":["nationality"]}`,
		proto.ToolCheckinAcceptance:  "{}",
		proto.ToolAncillaryCatalogue: "{}",
	}}
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolValidateCheckin, Arguments: `{}`}}},
		llm.Response{OutputText: validateFixture},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c2", Name: proto.ToolRegulatoryDetails, Arguments: `{}`}}},
		llm.Response{OutputText: `{"requiredFieldsMissing":["nationality"]}`},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-val")
	session.CurrentStage = proto.StageValidateProcessCheckin
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "yes, please check me in", "s-val")
	require.NoError(t, err)

	// The user's own confirmation drives the hop, so the turn lands on the
	// regulatory stage asking for the missing field.
	assert.Equal(t, proto.StageRegulatoryDetails, resp.Stage)
	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Contains(t, resp.UserMessage, "nationality")
	assert.Contains(t, resp.UserMessage, "dangerous goods")
	assert.Equal(t, []string{proto.ToolValidateCheckin, proto.ToolRegulatoryDetails}, broker.calls)

	stored, _, err := store.Get("s-val")
	require.NoError(t, err)
	assert.Equal(t, proto.StageRegulatoryDetails, stored.CurrentStage)
	assert.Equal(t, []string{"nationality"}, stored.Data.RequiredRegulatoryFields)
}

func TestAcceptanceAdvancesOnBoardingPassMention(t *testing.T) {
	const boardingFixture = `{"boardingPass":{"url":"https://example.com/bp/1","seat":"21A"}}`
	broker := &fakeBroker{results: map[string]string{
		proto.ToolCheckinAcceptance: `{"isAccepted":false}`,
		proto.ToolBoardingPass:      boardingFixture,
	}}
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolCheckinAcceptance, Arguments: `{}`}}},
		llm.Response{OutputText: `{"isAccepted":false}`},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c2", Name: proto.ToolBoardingPass, Arguments: `{}`}}},
		llm.Response{OutputText: boardingFixture},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-mention")
	session.CurrentStage = proto.StageCheckinAcceptance
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "can I get my boarding pass", "s-mention")
	require.NoError(t, err)

	// Asking for the boarding pass by name advances even though the
	// acceptance result itself did not.
	assert.Equal(t, proto.StageBoardingPass, resp.Stage)
	assert.Equal(t, proto.StatusUserInputRequired, resp.Status)
	assert.Contains(t, resp.UserMessage, "https://example.com/bp/1")
	assert.Equal(t, []string{proto.ToolCheckinAcceptance, proto.ToolBoardingPass}, broker.calls)

	stored, _, err := store.Get("s-mention")
	require.NoError(t, err)
	assert.Equal(t, proto.StageBoardingPass, stored.CurrentStage)
}

func TestAcceptanceAdvancesWhenAcceptedAndConfirming(t *testing.T) {
	const boardingFixture = `{"boardingPass":{"url":"https://example.com/bp/1"}}`
	broker := &fakeBroker{results: map[string]string{
		proto.ToolCheckinAcceptance:  `{"isAccepted":true}`,
		proto.ToolBoardingPass:       boardingFixture,
		proto.ToolAncillaryCatalogue: `{"hasAncillaryForPurchase":false}`,
	}}
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolCheckinAcceptance, Arguments: `{}`}}},
		llm.Response{OutputText: `{"isAccepted":true}`},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c2", Name: proto.ToolBoardingPass, Arguments: `{}`}}},
		llm.Response{OutputText: boardingFixture},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c3", Name: proto.ToolAncillaryCatalogue, Arguments: `{}`}}},
		llm.Response{OutputText: `{"hasAncillaryForPurchase":false}`},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-accepted")
	session.CurrentStage = proto.StageCheckinAcceptance
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "yes please", "s-accepted")
	require.NoError(t, err)

	// Accepted plus a plain confirmation (no "boarding pass" wording) hops
	// to the boarding pass, and the same confirmation carries on into the
	// ancillary stage.
	assert.Equal(t, []string{
		proto.ToolCheckinAcceptance,
		proto.ToolBoardingPass,
		proto.ToolAncillaryCatalogue,
	}, broker.calls)
	assert.Equal(t, proto.StageAncillarySelection, resp.Stage)

	stored, _, err := store.Get("s-accepted")
	require.NoError(t, err)
	assert.Equal(t, proto.StageAncillarySelection, stored.CurrentStage)
}

func TestSessionLockStableAndBounded(t *testing.T) {
	broker := &fakeBroker{results: map[string]string{}}
	o, _ := newTestOrchestrator(t, broker, llm.NewMockClient())

	// Same session always hits the same stripe; the stripe set is fixed, so
	// no per-session lock state accumulates.
	assert.Same(t, o.sessionLock("s-1"), o.sessionLock("s-1"))

	seen := make(map[*sync.Mutex]bool)
	for i := 0; i < 10*lockStripes; i++ {
		seen[o.sessionLock(fmt.Sprintf("session-%d", i))] = true
	}
	assert.LessOrEqual(t, len(seen), lockStripes)
}

func TestBoardingPassAdvanceOnConfirmation(t *testing.T) {
	const boardingFixture = `{"boardingPass":{"url":"https://example.com/bp/1","seat":"21A"}}`
	const ancillaryFixture = `{"hasAncillaryForPurchase":false}`
	broker := &fakeBroker{results: map[string]string{
		proto.ToolBoardingPass:          boardingFixture,
		proto.ToolAncillaryCatalogue:    ancillaryFixture,
		proto.ToolIdentificationTrip:    "{}",
		proto.ToolCheckinAcceptance:     "{}",
		proto.ToolRegulatoryDetails:     "{}",
		proto.ToolValidateCheckin:       "{}",
		proto.ToolIdentificationJourney: "{}",
	}}
	client := llm.NewMockClient(
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c1", Name: proto.ToolBoardingPass, Arguments: `{}`}}},
		llm.Response{OutputText: boardingFixture},
		llm.Response{ToolCalls: []llm.ToolCall{{CallID: "c2", Name: proto.ToolAncillaryCatalogue, Arguments: `{}`}}},
		llm.Response{OutputText: ancillaryFixture},
	)
	o, store := newTestOrchestrator(t, broker, client)

	session := proto.NewSessionState("s-bp")
	session.CurrentStage = proto.StageBoardingPass
	require.NoError(t, store.Set(session.SessionID, session, time.Hour))

	resp, err := o.Run(context.Background(), "yes please", "s-bp")
	require.NoError(t, err)

	// Confirmation advanced boarding pass into the ancillary stage within
	// the same turn.
	assert.Equal(t, proto.StageAncillarySelection, resp.Stage)
	assert.Equal(t, proto.StatusSuccess, resp.Status)

	stored, _, err := store.Get("s-bp")
	require.NoError(t, err)
	assert.Equal(t, proto.StageAncillarySelection, stored.CurrentStage)
}
