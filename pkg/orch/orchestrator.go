// Package orch is the stage-transition state machine. It resolves the
// session, dispatches the current stage's handler, and walks forward through
// guarded transitions within the same turn using a bounded work list.
package orch

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkin/pkg/logx"
	"checkin/pkg/metrics"
	"checkin/pkg/proto"
	"checkin/pkg/stages"
	"checkin/pkg/state"
	"checkin/pkg/utterance"
)

// mockBookingReference flips the session into mock mode for good.
const mockBookingReference = "7MHQTY"

// defaultMaxHops bounds same-turn stage advancement when unset.
const defaultMaxHops = 16

// lockStripes sizes the fixed lock array; sessions hash onto stripes so the
// lock footprint stays constant no matter how many sessions a process sees.
const lockStripes = 64

// Orchestrator owns session resolution and stage dispatch. Turns for the
// same session are serialized; unrelated sessions run concurrently.
type Orchestrator struct {
	store    state.Store
	handlers map[proto.Stage]stages.Handler
	ttl      time.Duration
	maxHops  int
	logger   *logx.Logger

	locks [lockStripes]sync.Mutex
}

// New creates an orchestrator over the given store and handler registry.
func New(store state.Store, handlers map[proto.Stage]stages.Handler, ttl time.Duration, maxHops int) *Orchestrator {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	return &Orchestrator{
		store:    store,
		handlers: handlers,
		ttl:      ttl,
		maxHops:  maxHops,
		logger:   logx.NewLogger("orch"),
	}
}

// Run handles one conversation turn. A missing or unknown session id mints a
// new session and returns an awaiting-input response without running any
// stage.
func (o *Orchestrator) Run(ctx context.Context, goal, sessionID string) (*proto.StageResponse, error) {
	if sessionID != "" {
		if _, found, err := o.store.Get(sessionID); err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
		} else if found {
			return o.runTurn(ctx, goal, sessionID)
		}
	}

	session := proto.NewSessionState(uuid.New().String())
	if err := o.store.Set(session.SessionID, session, o.ttl); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}
	o.logger.Info("minted session %s", session.SessionID)

	resp := proto.UserInput(proto.StageBeginConversation,
		"Welcome to check-in. Please share your booking reference (PNR) and last name, or your frequent flyer number.")
	resp.SessionID = session.SessionID
	return resp, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, goal, sessionID string) (*proto.StageResponse, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, found, err := o.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if !found {
		// Expired between the existence check and the lock; treat as new.
		session = proto.NewSessionState(sessionID)
	}

	resp := o.navigate(ctx, session, goal)
	resp.SessionID = session.SessionID

	if err := o.store.Set(session.SessionID, session, o.ttl); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", session.SessionID, err)
	}
	return resp, nil
}

// navigate dispatches stages from a work list instead of recursing; each
// iteration is one stage handler plus its transition guard.
func (o *Orchestrator) navigate(ctx context.Context, session *proto.SessionState, goal string) *proto.StageResponse {
	stage := session.CurrentStage
	for hop := 0; hop < o.maxHops; hop++ {
		resp, next := o.dispatch(ctx, session, stage, goal)
		if resp != nil {
			session.ApplyResponse(resp)
		}
		if next == "" {
			return resp
		}

		o.logger.Debug("session %s: %s -> %s", session.SessionID, stage, next)
		metrics.StageTransitions.WithLabelValues(string(stage), string(next)).Inc()
		// Park the session at the target stage before running its handler so
		// a crash mid-handler resumes there, not at the old stage.
		session.CurrentStage = next
		if err := o.store.Set(session.SessionID, session, o.ttl); err != nil {
			o.logger.Error("failed to persist transition to %s: %v", next, err)
			return proto.Failed(next, "failed to persist session state")
		}
		stage = next
	}
	o.logger.Warn("session %s exceeded %d stage hops in one turn", session.SessionID, o.maxHops)
	return proto.Failed(stage, "too many stage transitions in one turn")
}

// dispatch runs one stage and returns its response plus the next stage when
// the transition guard passes.
func (o *Orchestrator) dispatch(ctx context.Context, session *proto.SessionState, stage proto.Stage, goal string) (*proto.StageResponse, proto.Stage) {
	switch stage {
	case proto.StageTripIdentification:
		// A booking reference in the utterance bypasses the trip lookup.
		if pnr := utterance.FindBookingReference(goal); pnr != "" {
			o.rememberBookingReference(session, pnr)
			return nil, proto.StageJourneyIdentification
		}
	case proto.StageJourneyIdentification:
		if resp := o.gateJourney(session, goal); resp != nil {
			return resp, ""
		}
	}

	handler, ok := o.handlers[stage]
	if !ok {
		o.logger.Warn("session %s reached unconfigured stage %s", session.SessionID, stage)
		return proto.Failed(stage, "no orchestrator configured"), ""
	}

	resp := handler.HandleStage(ctx, session, goal)
	return resp, o.nextStage(session, stage, resp, goal)
}

// nextStage applies the per-stage transition guard.
func (o *Orchestrator) nextStage(session *proto.SessionState, stage proto.Stage, resp *proto.StageResponse, goal string) proto.Stage {
	advanced := resp.Status == proto.StatusSuccess && resp.Continue
	switch stage {
	case proto.StageBeginConversation:
		if advanced {
			if session.Data.FrequentFlyerNumber != "" {
				return proto.StageTripIdentification
			}
			return proto.StageJourneyIdentification
		}
	case proto.StageJourneyIdentification:
		if advanced {
			return proto.StageValidateProcessCheckin
		}
	case proto.StageValidateProcessCheckin:
		// Keyed off the user's own confirmation, not the stage result.
		if utterance.IsConfirming(goal) {
			return proto.StageRegulatoryDetails
		}
	case proto.StageRegulatoryDetails:
		if advanced {
			return proto.StageCheckinAcceptance
		}
	case proto.StageCheckinAcceptance:
		if strings.Contains(strings.ToLower(goal), "boarding pass") {
			return proto.StageBoardingPass
		}
		if accepted, _ := resp.Data["isAccepted"].(bool); accepted && utterance.IsConfirming(goal) {
			return proto.StageBoardingPass
		}
	case proto.StageBoardingPass:
		if utterance.IsConfirming(goal) {
			return proto.StageAncillarySelection
		}
	}
	// TRIP_IDENTIFICATION advances only via the bypass; JOURNEY_SELECTION and
	// ANCILLARY_SELECTION are leaves.
	return ""
}

// gateJourney requires a resolved booking reference and last name before the
// journey agent runs. Returns the short-circuit response when either is
// missing.
func (o *Orchestrator) gateJourney(session *proto.SessionState, goal string) *proto.StageResponse {
	pnr := session.Data.BookingReference
	if pnr == "" {
		pnr = utterance.FindBookingReference(goal)
	}
	if pnr != "" {
		o.rememberBookingReference(session, pnr)
	}

	lastName := session.Data.LastName
	if lastName == "" {
		lastName = utterance.FindLastName(goal)
		session.Data.LastName = lastName
	}

	var missing []string
	if pnr == "" {
		missing = append(missing, "PNR/bookingReference")
	}
	if lastName == "" {
		missing = append(missing, "lastName")
	}
	if len(missing) == 0 {
		return nil
	}
	return proto.UserInput(proto.StageJourneyIdentification,
		fmt.Sprintf("To find your journey I still need your %s.", strings.Join(missing, " and ")))
}

// rememberBookingReference persists the reference and flips sticky mock mode
// for the designated test booking.
func (o *Orchestrator) rememberBookingReference(session *proto.SessionState, pnr string) {
	session.Data.BookingReference = pnr
	if strings.EqualFold(pnr, mockBookingReference) {
		session.Data.UseMock = true
	}
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &o.locks[h.Sum32()%lockStripes]
}
