package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type AmbulanceRepository struct {
	s *Store
}

func (r *AmbulanceRepository) Create(ctx context.Context, ambulance *model.Ambulance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if ambulance.ID == uuid.Nil {
		ambulance.ID = uuid.New()
	}
	if ambulance.Status == "" {
		ambulance.Status = model.AmbulanceAvailable
	}
	now := r.s.now()
	ambulance.CreatedAt = now
	ambulance.UpdatedAt = now
	a := *ambulance
	r.s.ambulances[a.ID] = &a
	return nil
}

func (r *AmbulanceRepository) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Ambulance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.ambulances[id]
	if !ok || a.HospitalID != hospitalID {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *AmbulanceRepository) Update(ctx context.Context, ambulance *model.Ambulance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.ambulances[ambulance.ID]
	if !ok || a.HospitalID != ambulance.HospitalID {
		return repository.ErrNotFound
	}
	a.PlateNumber = ambulance.PlateNumber
	a.Status = ambulance.Status
	a.UpdatedAt = r.s.now()
	*ambulance = *a
	return nil
}

func (r *AmbulanceRepository) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.ambulances[id]
	if !ok || a.HospitalID != hospitalID {
		return repository.ErrNotFound
	}
	for _, d := range r.s.drivers {
		if d.AmbulanceID != nil && *d.AmbulanceID == id {
			d.AmbulanceID = nil
			d.UpdatedAt = r.s.now()
		}
	}
	delete(r.s.ambulances, id)
	return nil
}

func (r *AmbulanceRepository) List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Ambulance, 0)
	for _, a := range r.s.ambulances {
		if a.HospitalID == hospitalID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *AmbulanceRepository) CountAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, a := range r.s.ambulances {
		if a.HospitalID == hospitalID && a.Status == model.AmbulanceAvailable {
			n++
		}
	}
	return n, nil
}

type DriverRepository struct {
	s *Store
}

// checkAssignment must be called with the lock held.
func (r *DriverRepository) checkAssignment(d *model.Driver) error {
	if d.AmbulanceID == nil {
		return nil
	}
	a, ok := r.s.ambulances[*d.AmbulanceID]
	if !ok || a.HospitalID != d.HospitalID {
		return repository.ErrNotFound
	}
	for _, other := range r.s.drivers {
		if other.ID != d.ID && other.AmbulanceID != nil && *other.AmbulanceID == *d.AmbulanceID {
			return repository.ErrAmbulanceAssigned
		}
	}
	return nil
}

func (r *DriverRepository) Create(ctx context.Context, driver *model.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if driver.ID == uuid.Nil {
		driver.ID = uuid.New()
	}
	if err := r.checkAssignment(driver); err != nil {
		return err
	}
	now := r.s.now()
	driver.CreatedAt = now
	driver.UpdatedAt = now
	r.s.drivers[driver.ID] = cloneDriver(driver)
	return nil
}

func (r *DriverRepository) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.drivers[id]
	if !ok || d.HospitalID != hospitalID {
		return nil, repository.ErrNotFound
	}
	return cloneDriver(d), nil
}

func (r *DriverRepository) Update(ctx context.Context, driver *model.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[driver.ID]
	if !ok || d.HospitalID != driver.HospitalID {
		return repository.ErrNotFound
	}
	if err := r.checkAssignment(driver); err != nil {
		return err
	}
	driver.CreatedAt = d.CreatedAt
	driver.UpdatedAt = r.s.now()
	r.s.drivers[driver.ID] = cloneDriver(driver)
	return nil
}

func (r *DriverRepository) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok || d.HospitalID != hospitalID {
		return repository.ErrNotFound
	}
	delete(r.s.drivers, id)
	return nil
}

func (r *DriverRepository) List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Driver, 0)
	for _, d := range r.s.drivers {
		if d.HospitalID == hospitalID {
			out = append(out, cloneDriver(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
