// Package state bridges poll results into the persisted snapshot the
// status command reads.
package state

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
	"github.com/patricknitsch/grohe-smarthome/internal/ports"
)

// SnapshotSink collects the devices of the running cycle and persists a
// snapshot when the cycle's health signal arrives. The poller drives it
// from a single goroutine, so no locking is needed.
type SnapshotSink struct {
	repo  ports.SnapshotRepository
	clock ports.Clock
	log   zerolog.Logger

	pending []domain.Device
}

var _ ports.DeviceSink = (*SnapshotSink)(nil)

func NewSnapshotSink(repo ports.SnapshotRepository, clock ports.Clock, log zerolog.Logger) *SnapshotSink {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SnapshotSink{
		repo:  repo,
		clock: clock,
		log:   log.With().Str("component", "sink").Logger(),
	}
}

func (s *SnapshotSink) ApplyDevice(_ context.Context, device domain.Device) error {
	s.pending = append(s.pending, device)

	s.log.Debug().
		Str("appliance", device.Ref.ApplianceID).
		Stringer("kind", device.Kind).
		Str("name", device.Name).
		Msg("device updated")

	return nil
}

func (s *SnapshotSink) SetConnectionHealth(ctx context.Context, healthy bool) error {
	snapshot := domain.Snapshot{
		Devices: s.pending,
		Healthy: healthy,
		TakenAt: s.clock.Now(),
	}
	s.pending = nil

	if !healthy && len(snapshot.Devices) == 0 {
		// Keep the last known devices visible while the connection is down.
		if previous, err := s.repo.Load(ctx); err == nil {
			snapshot.Devices = previous.Devices
		}
	}

	return s.repo.Save(ctx, snapshot)
}
