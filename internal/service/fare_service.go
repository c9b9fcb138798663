package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FareService implements ports.FareService. The workflow state is advisory and
// shared by all terminals; the wallet row lock is what serializes settlements.
type FareService struct {
	identity      ports.IdentityIndex
	ledger        ports.Ledger
	broadcaster   ports.Broadcaster
	displayWindow time.Duration
	now           func() time.Time
	log           zerolog.Logger

	mu          sync.Mutex
	state       domain.FareState
	scanning    bool
	pending     *domain.ScanEvent
	lastSettled *domain.Settlement
	updatedAt   time.Time
	gen         uint64
	timer       *time.Timer
}

// NewFareService creates a new FareService in the Idle state.
func NewFareService(
	identity ports.IdentityIndex,
	ledger ports.Ledger,
	broadcaster ports.Broadcaster,
	displayWindow time.Duration,
	log zerolog.Logger,
) *FareService {
	return &FareService{
		identity:      identity,
		ledger:        ledger,
		broadcaster:   broadcaster,
		displayWindow: displayWindow,
		now:           time.Now,
		log:           log,
		state:         domain.FareStateIdle,
		updatedAt:     time.Now().UTC(),
	}
}

// StartScanning opens a scanning window and tells devices to poll for cards.
func (s *FareService) StartScanning(ctx context.Context, actor domain.Identity) (ports.FareSnapshot, error) {
	if err := requireConductor(actor); err != nil {
		return ports.FareSnapshot{}, err
	}

	s.mu.Lock()
	prev := s.windowLocked()
	s.scanning = true
	s.pending = nil
	s.transitionLocked(domain.FareStateScanning)
	gen := s.gen
	s.mu.Unlock()

	if err := s.broadcaster.SetScanMode(ctx, true); err != nil {
		s.rollbackWindow(gen, prev)
		return ports.FareSnapshot{}, apperror.ErrTransient(fmt.Errorf("set scan mode: %w", err))
	}

	s.log.Info().Str("conductor_id", actor.UserID.String()).Msg("scanning started")
	return s.State(), nil
}

// StopScanning closes the scanning window and drops any pending tap.
func (s *FareService) StopScanning(ctx context.Context, actor domain.Identity) (ports.FareSnapshot, error) {
	if err := requireConductor(actor); err != nil {
		return ports.FareSnapshot{}, err
	}

	s.mu.Lock()
	prev := s.windowLocked()
	s.scanning = false
	s.pending = nil
	s.stopTimerLocked()
	s.transitionLocked(domain.FareStateIdle)
	gen := s.gen
	s.mu.Unlock()

	if err := s.broadcaster.SetScanMode(ctx, false); err != nil {
		s.rollbackWindow(gen, prev)
		return ports.FareSnapshot{}, apperror.ErrTransient(fmt.Errorf("set scan mode: %w", err))
	}

	s.log.Info().Str("conductor_id", actor.UserID.String()).Msg("scanning stopped")
	return s.State(), nil
}

// Reset clears the displayed outcome without waiting for the display window.
func (s *FareService) Reset(_ context.Context, actor domain.Identity) (ports.FareSnapshot, error) {
	if err := requireConductor(actor); err != nil {
		return ports.FareSnapshot{}, err
	}

	s.mu.Lock()
	s.pending = nil
	s.stopTimerLocked()
	s.returnLocked()
	s.mu.Unlock()

	return s.State(), nil
}

// ResolveTap looks up the card behind a tap. An unknown card is a NotFound
// outcome, not an error. The wallet is never touched.
func (s *FareService) ResolveTap(ctx context.Context, rawUID string) (*domain.ScanEvent, error) {
	event := &domain.ScanEvent{UID: NormalizeUID(rawUID), Timestamp: s.now().UTC()}

	user, err := s.identity.ResolveByCard(ctx, rawUID)
	switch {
	case err == nil:
		event.User = user
	case apperror.HasCode(err, apperror.CodeNotFound):
	default:
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		s.log.Debug().Str("uid", event.UID).Msg("tap outside scanning window")
		return event, nil
	}

	s.pending = event
	s.stopTimerLocked()
	if event.Found() {
		s.transitionLocked(domain.FareStateFound)
	} else {
		s.transitionLocked(domain.FareStateNotFound)
	}
	return event, nil
}

// Settle debits one fare from the passenger holding uid. The card is resolved
// again here; the balance shown at tap time is display-only.
func (s *FareService) Settle(ctx context.Context, actor domain.Identity, req ports.SettleRequest) (*domain.Settlement, error) {
	if err := requireConductor(actor); err != nil {
		return nil, err
	}
	if req.Fare <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	user, err := s.identity.ResolveByCard(ctx, req.UID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, apperror.ErrForbidden("Passenger card is blocked")
	}

	s.mu.Lock()
	s.stopTimerLocked()
	s.transitionLocked(domain.FareStateSettling)
	s.mu.Unlock()

	newBalance, err := s.ledger.Debit(ctx, ports.LedgerEntry{
		UserID:      user.ID,
		Amount:      req.Fare,
		Description: domain.FareDescription,
	})
	if err != nil {
		s.finish(domain.FareStateRejected, nil)
		s.log.Info().
			Err(err).
			Str("user_id", user.ID.String()).
			Int64("fare", req.Fare).
			Msg("fare rejected")
		return nil, err
	}

	stats, err := s.ledger.DailyStats(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("daily stats unavailable after settlement")
		stats = nil
	}

	settlement := &domain.Settlement{
		UID:           NormalizeUID(req.UID),
		UserID:        user.ID,
		PassengerName: user.Name,
		FareDeducted:  req.Fare,
		NewBalance:    newBalance,
		Stats:         stats,
		SettledAt:     s.now().UTC(),
	}
	s.finish(domain.FareStateSettled, settlement)

	if err := s.broadcaster.BroadcastSettlement(ctx, settlement); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("settlement broadcast failed")
	}

	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("conductor_id", actor.UserID.String()).
		Int64("fare", req.Fare).
		Int64("balance", newBalance).
		Msg("fare settled")

	return settlement, nil
}

// State returns a snapshot of the workflow.
func (s *FareService) State() ports.FareSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ports.FareSnapshot{
		State:       s.state,
		Scanning:    s.scanning,
		LastSettled: s.lastSettled,
		UpdatedAt:   s.updatedAt,
	}
	if s.pending != nil {
		snap.PendingUID = s.pending.UID
		snap.PendingFound = s.pending.Found()
		if s.pending.User != nil {
			snap.PendingName = s.pending.User.Name
		}
	}
	return snap
}

// Close stops the display window timer.
func (s *FareService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

func (s *FareService) finish(next domain.FareState, settlement *domain.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settlement != nil {
		s.lastSettled = settlement
		if s.pending != nil && s.pending.UID == settlement.UID {
			s.pending = nil
		}
	}
	if !s.transitionLocked(next) {
		return
	}
	s.displayLocked()
}

// displayLocked holds the current outcome for the display window, then returns.
func (s *FareService) displayLocked() {
	s.stopTimerLocked()
	if s.displayWindow <= 0 {
		s.returnLocked()
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.displayWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen {
			s.returnLocked()
		}
	})
}

// scanWindow is the part of the workflow a scan mode change replaces.
type scanWindow struct {
	state     domain.FareState
	scanning  bool
	pending   *domain.ScanEvent
	updatedAt time.Time
}

func (s *FareService) windowLocked() scanWindow {
	return scanWindow{state: s.state, scanning: s.scanning, pending: s.pending, updatedAt: s.updatedAt}
}

// rollbackWindow restores prev after a failed scan mode broadcast, unless the
// workflow moved past gen in the meantime.
func (s *FareService) rollbackWindow(gen uint64, prev scanWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		s.log.Warn().Str("state", string(s.state)).Msg("scan mode broadcast failed after workflow moved on, keeping current state")
		return
	}
	s.scanning = prev.scanning
	s.pending = prev.pending
	if s.state == prev.state {
		return
	}
	s.state = prev.state
	s.updatedAt = prev.updatedAt
	s.gen++
	switch prev.state {
	case domain.FareStateIdle, domain.FareStateScanning:
	default:
		s.displayLocked()
	}
}

// returnLocked goes back to Scanning, or Idle if no window is open.
func (s *FareService) returnLocked() {
	if s.scanning {
		s.transitionLocked(domain.FareStateScanning)
		return
	}
	s.transitionLocked(domain.FareStateIdle)
}

func (s *FareService) transitionLocked(next domain.FareState) bool {
	if s.state == next {
		return true
	}
	if !s.state.CanTransition(next) {
		s.log.Debug().Str("from", string(s.state)).Str("to", string(next)).Msg("fare state transition skipped")
		return false
	}
	s.state = next
	s.updatedAt = s.now().UTC()
	s.gen++
	return true
}

func (s *FareService) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func requireConductor(actor domain.Identity) error {
	if actor.UserID == uuid.Nil {
		return apperror.ErrUnauthorized()
	}
	if !actor.IsConductor() {
		return apperror.ErrForbidden("Conductor role required")
	}
	return nil
}
