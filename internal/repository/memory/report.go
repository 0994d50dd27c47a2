package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type ReportRepository struct {
	s *Store
}

func (r *ReportRepository) Create(ctx context.Context, report *model.EmergencyReport, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if _, exists := r.s.reports[report.ID]; exists {
		return repository.ErrDuplicate
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = r.s.now()
	}
	r.s.reports[report.ID] = cloneReport(report)
	r.s.appendEvent(event)
	return nil
}

func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*model.EmergencyReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rep, ok := r.s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneReport(rep), nil
}

func (r *ReportRepository) List(ctx context.Context, f model.ReportFilter) ([]*model.EmergencyReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.EmergencyReport, 0)
	for _, rep := range r.s.reports {
		if matches(rep, f) {
			out = append(out, cloneReport(rep))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func matches(rep *model.EmergencyReport, f model.ReportFilter) bool {
	if f.Status != nil && rep.Status != *f.Status {
		return false
	}
	if f.UserID != nil && rep.UserID != *f.UserID {
		return false
	}
	if f.HospitalID != nil {
		tagged := rep.HospitalID != nil && *rep.HospitalID == *f.HospitalID
		untagged := f.IncludeUntagged && rep.HospitalID == nil
		if !tagged && !untagged {
			return false
		}
	}
	return true
}

func (r *ReportRepository) Dispatch(ctx context.Context, p repository.DispatchParams, event *model.OutboxEvent) (*model.EmergencyReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rep, ok := r.s.reports[p.ReportID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	amb, ok := r.s.ambulances[p.AmbulanceID]
	if !ok || amb.HospitalID != p.HospitalID {
		return nil, repository.ErrAmbulanceUnavailable
	}
	if rep.Status != model.ReportPending {
		return nil, repository.ErrReportNotPending
	}
	if amb.Status != model.AmbulanceAvailable {
		return nil, repository.ErrAmbulanceUnavailable
	}

	if err := rep.Dispatch(p.HospitalID, p.AmbulanceID, p.At); err != nil {
		return nil, repository.ErrReportNotPending
	}
	amb.Status = model.AmbulanceInUse
	amb.UpdatedAt = p.At
	r.s.appendEvent(event)
	return cloneReport(rep), nil
}

func (r *ReportRepository) MarkFalseAlarm(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) (*model.EmergencyReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rep, ok := r.s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := rep.MarkFalseAlarm(); err != nil {
		return nil, repository.ErrReportNotPending
	}
	r.s.appendEvent(event)
	return cloneReport(rep), nil
}
