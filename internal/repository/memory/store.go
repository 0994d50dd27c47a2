// Package memory is an in-process storage backend. It applies the same guards
// as the PostgreSQL repositories under a single mutex, so every multi-record
// operation is atomic.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*model.Account
	hospitals  map[uuid.UUID]*model.Hospital
	ambulances map[uuid.UUID]*model.Ambulance
	drivers    map[uuid.UUID]*model.Driver
	reports    map[uuid.UUID]*model.EmergencyReport
	outbox     []*model.OutboxEvent
	sessions   map[string]*model.Session
	now        func() time.Time
}

func New() *Store {
	return &Store{
		accounts:   make(map[uuid.UUID]*model.Account),
		hospitals:  make(map[uuid.UUID]*model.Hospital),
		ambulances: make(map[uuid.UUID]*model.Ambulance),
		drivers:    make(map[uuid.UUID]*model.Driver),
		reports:    make(map[uuid.UUID]*model.EmergencyReport),
		sessions:   make(map[string]*model.Session),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Accounts:   &AccountRepository{s},
		Hospitals:  &HospitalRepository{s},
		Ambulances: &AmbulanceRepository{s},
		Drivers:    &DriverRepository{s},
		Reports:    &ReportRepository{s},
		Outbox:     &OutboxRepository{s},
		Sessions:   &SessionRepository{s},
	}
}

// Events returns a copy of every outbox event recorded so far.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		c := *e
		out = append(out, &c)
	}
	return out
}

func (s *Store) appendEvent(e *model.OutboxEvent) {
	if e == nil {
		return
	}
	c := *e
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.OutboxStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.UpdatedAt = c.CreatedAt
	s.outbox = append(s.outbox, &c)
}

func cloneReport(r *model.EmergencyReport) *model.EmergencyReport {
	c := *r
	if r.AssignedAmbulanceID != nil {
		id := *r.AssignedAmbulanceID
		c.AssignedAmbulanceID = &id
	}
	if r.HospitalID != nil {
		id := *r.HospitalID
		c.HospitalID = &id
	}
	if r.DispatchedAt != nil {
		at := *r.DispatchedAt
		c.DispatchedAt = &at
	}
	return &c
}

func cloneDriver(d *model.Driver) *model.Driver {
	c := *d
	if d.AmbulanceID != nil {
		id := *d.AmbulanceID
		c.AmbulanceID = &id
	}
	return &c
}

func sortByCreatedDesc(reports []*model.EmergencyReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}
