package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

// FleetReader is what the operator feed needs from the fleet registry.
type FleetReader interface {
	AvailabilityGate
	ListAmbulances(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error)
	ListDrivers(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error)
}

// Feed periodically re-derives an operator's dashboard state.
type Feed struct {
	reports *Service
	fleet   FleetReader
	logger  *logger.Logger
}

func NewFeed(reports *Service, fleet FleetReader, log *logger.Logger) *Feed {
	return &Feed{reports: reports, fleet: fleet, logger: log.With("feed")}
}

func (f *Feed) Snapshot(ctx context.Context, hospitalID uuid.UUID) (*model.OperatorSnapshot, error) {
	pending, err := f.reports.VisiblePending(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	ambulances, err := f.fleet.ListAmbulances(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	drivers, err := f.fleet.ListDrivers(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	has := false
	for _, a := range ambulances {
		if a.Status == model.AmbulanceAvailable {
			has = true
			break
		}
	}

	return &model.OperatorSnapshot{
		Pending:      pending,
		Ambulances:   ambulances,
		Drivers:      drivers,
		HasAvailable: has,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Run emits a snapshot immediately and then every interval until ctx is
// done. A failed snapshot is logged and skipped; an emit error ends the feed.
func (f *Feed) Run(ctx context.Context, hospitalID uuid.UUID, every time.Duration, emit func(*model.OperatorSnapshot) error) error {
	if every <= 0 {
		return fmt.Errorf("feed interval must be positive")
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		snap, err := f.Snapshot(ctx, hospitalID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Error(err, "Failed to build operator snapshot", "hospital_id", hospitalID.String())
		default:
			if err := emit(snap); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
