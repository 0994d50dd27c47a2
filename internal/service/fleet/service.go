package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

// Service manages a hospital's ambulances and drivers. Every operation is
// scoped to one hospital; records of other hospitals read as not found.
type Service struct {
	ambulances repository.AmbulanceRepository
	drivers    repository.DriverRepository
	logger     *logger.Logger
}

func NewService(ambulances repository.AmbulanceRepository, drivers repository.DriverRepository, log *logger.Logger) *Service {
	return &Service{
		ambulances: ambulances,
		drivers:    drivers,
		logger:     log.With("fleet"),
	}
}

func (s *Service) CreateAmbulance(ctx context.Context, hospitalID uuid.UUID, req model.AmbulanceRequest) (*model.Ambulance, error) {
	status := req.Status
	if status == "" {
		status = model.AmbulanceAvailable
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid ambulance status %q", status)
	}

	ambulance := &model.Ambulance{
		ID:          uuid.New(),
		PlateNumber: strings.ToUpper(strings.TrimSpace(req.PlateNumber)),
		Status:      status,
		HospitalID:  hospitalID,
	}
	if err := s.ambulances.Create(ctx, ambulance); err != nil {
		return nil, fmt.Errorf("failed to create ambulance: %w", err)
	}
	return ambulance, nil
}

func (s *Service) UpdateAmbulance(ctx context.Context, hospitalID, id uuid.UUID, req model.AmbulanceRequest) (*model.Ambulance, error) {
	ambulance, err := s.ambulances.Get(ctx, hospitalID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ambulance: %w", err)
	}

	ambulance.PlateNumber = strings.ToUpper(strings.TrimSpace(req.PlateNumber))
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("invalid ambulance status %q", req.Status)
		}
		ambulance.Status = req.Status
	}

	if err := s.ambulances.Update(ctx, ambulance); err != nil {
		return nil, fmt.Errorf("failed to update ambulance: %w", err)
	}
	return ambulance, nil
}

// DeleteAmbulance also clears the ambulance from any driver.
func (s *Service) DeleteAmbulance(ctx context.Context, hospitalID, id uuid.UUID) error {
	if err := s.ambulances.Delete(ctx, hospitalID, id); err != nil {
		return fmt.Errorf("failed to delete ambulance: %w", err)
	}
	s.logger.Info("Ambulance deleted", "hospital_id", hospitalID.String(), "ambulance_id", id.String())
	return nil
}

func (s *Service) ListAmbulances(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error) {
	list, err := s.ambulances.List(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ambulances: %w", err)
	}
	return list, nil
}

// HasAvailableAmbulance is the dispatch gate: a hospital sees the pending
// queue only while at least one of its ambulances is available.
func (s *Service) HasAvailableAmbulance(ctx context.Context, hospitalID uuid.UUID) (bool, error) {
	n, err := s.ambulances.CountAvailable(ctx, hospitalID)
	if err != nil {
		return false, fmt.Errorf("failed to count available ambulances: %w", err)
	}
	return n > 0, nil
}

func (s *Service) CreateDriver(ctx context.Context, hospitalID uuid.UUID, req model.DriverRequest) (*model.Driver, error) {
	driver := &model.Driver{
		ID:            uuid.New(),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		HospitalID:    hospitalID,
		AmbulanceID:   req.AmbulanceID,
	}
	if err := s.drivers.Create(ctx, driver); err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return driver, nil
}

func (s *Service) UpdateDriver(ctx context.Context, hospitalID, id uuid.UUID, req model.DriverRequest) (*model.Driver, error) {
	driver, err := s.drivers.Get(ctx, hospitalID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}

	driver.FirstName = strings.TrimSpace(req.FirstName)
	driver.LastName = strings.TrimSpace(req.LastName)
	driver.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	driver.AmbulanceID = req.AmbulanceID

	if err := s.drivers.Update(ctx, driver); err != nil {
		return nil, fmt.Errorf("failed to update driver: %w", err)
	}
	return driver, nil
}

func (s *Service) DeleteDriver(ctx context.Context, hospitalID, id uuid.UUID) error {
	if err := s.drivers.Delete(ctx, hospitalID, id); err != nil {
		return fmt.Errorf("failed to delete driver: %w", err)
	}
	return nil
}

func (s *Service) ListDrivers(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error) {
	list, err := s.drivers.List(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	return list, nil
}

// AssignableAmbulances lists ambulances no driver holds, plus the one held
// by editingDriverID when given.
func (s *Service) AssignableAmbulances(ctx context.Context, hospitalID uuid.UUID, editingDriverID *uuid.UUID) ([]*model.Ambulance, error) {
	ambulances, err := s.ListAmbulances(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.ListDrivers(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	taken := make(map[uuid.UUID]bool, len(drivers))
	for _, d := range drivers {
		if d.AmbulanceID == nil {
			continue
		}
		if editingDriverID != nil && d.ID == *editingDriverID {
			continue
		}
		taken[*d.AmbulanceID] = true
	}

	out := make([]*model.Ambulance, 0, len(ambulances))
	for _, a := range ambulances {
		if !taken[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) Summary(ctx context.Context, hospitalID uuid.UUID) (*model.FleetSummary, error) {
	ambulances, err := s.ListAmbulances(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	drivers, err := s.ListDrivers(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return summarize(ambulances, drivers), nil
}

func summarize(ambulances []*model.Ambulance, drivers []*model.Driver) *model.FleetSummary {
	sum := &model.FleetSummary{Ambulances: len(ambulances), Drivers: len(drivers)}
	for _, a := range ambulances {
		switch a.Status {
		case model.AmbulanceAvailable:
			sum.AvailableAmbulances++
		case model.AmbulanceInUse:
			sum.InUseAmbulances++
		}
	}
	for _, d := range drivers {
		if d.AmbulanceID != nil {
			sum.AssignedDrivers++
		}
	}
	sum.UnassignedDrivers = sum.Drivers - sum.AssignedDrivers
	sum.HasAvailable = sum.AvailableAmbulances > 0
	return sum
}
