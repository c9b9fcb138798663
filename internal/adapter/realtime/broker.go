package realtime

import (
	"context"
	"errors"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/rs/zerolog"
)

// ErrBrokerClosed is returned once Run has exited.
var ErrBrokerClosed = errors.New("realtime: broker closed")

const opQueueSize = 256

// Broker owns group membership. All state is touched only by the Run
// goroutine; callers submit closures over ops.
type Broker struct {
	ops  chan func()
	done chan struct{}
	log  zerolog.Logger

	scanners   map[*Session]struct{}
	dashboards map[*Session]struct{}
}

// NewBroker creates a Broker. Run must be started before use.
func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{
		ops:        make(chan func(), opQueueSize),
		done:       make(chan struct{}),
		log:        log,
		scanners:   make(map[*Session]struct{}),
		dashboards: make(map[*Session]struct{}),
	}
}

// Run processes operations until ctx is cancelled, then disconnects every
// member.
func (b *Broker) Run(ctx context.Context) error {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			for s := range b.scanners {
				s.Close()
			}
			for s := range b.dashboards {
				s.Close()
			}
			b.scanners = map[*Session]struct{}{}
			b.dashboards = map[*Session]struct{}{}
			b.log.Info().Msg("session broker stopped")
			return nil
		case op := <-b.ops:
			op()
		}
	}
}

// submit enqueues op without waiting for it to run.
func (b *Broker) submit(ctx context.Context, op func()) error {
	select {
	case <-b.done:
		return ErrBrokerClosed
	default:
	}

	select {
	case b.ops <- op:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec runs op on the actor and waits for it to finish.
func (b *Broker) exec(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	if err := b.submit(ctx, func() {
		op()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds s to group. A session belongs to at most one group.
func (b *Broker) Join(ctx context.Context, s *Session, group Group) error {
	return b.exec(ctx, func() {
		switch group {
		case GroupScanners:
			delete(b.dashboards, s)
			b.scanners[s] = struct{}{}
		case GroupDashboards:
			delete(b.scanners, s)
			b.dashboards[s] = struct{}{}
		}
		b.log.Debug().
			Str("session_id", s.ID()).
			Int("scanners", len(b.scanners)).
			Int("dashboards", len(b.dashboards)).
			Msg("session joined")
	})
}

// Leave removes s from its group. When the last scanner leaves, dashboards
// are told the device is gone.
func (b *Broker) Leave(ctx context.Context, s *Session) error {
	return b.submit(ctx, func() {
		b.removeLocked(s)
	})
}

// Broadcast queues env for every member of group. Broadcasts are delivered in
// submission order.
func (b *Broker) Broadcast(ctx context.Context, group Group, env Envelope) error {
	return b.submit(ctx, func() {
		b.deliverLocked(group, env)
	})
}

// BroadcastDeviceStatus tells dashboards whether any scanner is connected.
func (b *Broker) BroadcastDeviceStatus(ctx context.Context) error {
	return b.submit(ctx, func() {
		b.deliverLocked(GroupDashboards, deviceStatus(len(b.scanners) > 0))
	})
}

// SendDeviceStatus tells a single session whether any scanner is connected.
func (b *Broker) SendDeviceStatus(ctx context.Context, s *Session) error {
	return b.submit(ctx, func() {
		if !s.enqueue(deviceStatus(len(b.scanners) > 0)) {
			b.evictLocked(s)
		}
	})
}

// Counts returns the current group sizes.
func (b *Broker) Counts(ctx context.Context) (scanners, dashboards int, err error) {
	err = b.exec(ctx, func() {
		scanners, dashboards = len(b.scanners), len(b.dashboards)
	})
	return scanners, dashboards, err
}

// SetScanMode tells every scanner to start or stop polling for cards.
func (b *Broker) SetScanMode(ctx context.Context, enabled bool) error {
	return b.Broadcast(ctx, GroupScanners, Envelope{Type: TypeScanMode, Data: scanModeData{Enabled: enabled}})
}

// BroadcastSettlement pushes a settled fare to every dashboard.
func (b *Broker) BroadcastSettlement(ctx context.Context, settlement *domain.Settlement) error {
	return b.Broadcast(ctx, GroupDashboards, Envelope{Type: TypeFareSettled, Data: fareSettledData{
		UID:           settlement.UID,
		PassengerName: settlement.PassengerName,
		FareDeducted:  settlement.FareDeducted,
		NewBalance:    settlement.NewBalance,
		Stats:         settlement.Stats,
	}})
}

func (b *Broker) members(group Group) map[*Session]struct{} {
	if group == GroupScanners {
		return b.scanners
	}
	return b.dashboards
}

func (b *Broker) deliverLocked(group Group, env Envelope) {
	for s := range b.members(group) {
		if !s.enqueue(env) {
			b.evictLocked(s)
		}
	}
}

// evictLocked drops a member whose send queue is full and disconnects it.
func (b *Broker) evictLocked(s *Session) {
	b.log.Warn().Str("session_id", s.ID()).Msg("evicting slow session")
	s.Close()
	b.removeLocked(s)
}

func (b *Broker) removeLocked(s *Session) {
	if _, ok := b.scanners[s]; ok {
		delete(b.scanners, s)
		b.log.Info().Str("session_id", s.ID()).Int("scanners", len(b.scanners)).Msg("scanner disconnected")
		if len(b.scanners) == 0 {
			b.deliverLocked(GroupDashboards, deviceStatus(false))
		}
		return
	}
	delete(b.dashboards, s)
}
