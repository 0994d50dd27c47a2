package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/internal/service/analysis"
	"github.com/jwalitptl/dispatch-api/pkg/geo"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

var (
	ErrFakeAlarm     = errors.New("report rejected as a false alarm")
	ErrImageRequired = errors.New("an image is required")
	ErrNotReporter   = errors.New("only reporting users can submit reports")
)

const fakeAlarmBlockReason = "submitted a false alarm"

// persistTimeout bounds the writes that follow the analysis phase of an
// intake. They run detached from the request so a slow provider cannot
// leave them an expired context.
const persistTimeout = 5 * time.Second

// Analyzer is the part of the analysis service the intake flow uses.
type Analyzer interface {
	Analyze(ctx context.Context, img *analysis.Image) analysis.Result
	DetectFakeAlarm(ctx context.Context, img *analysis.Image, description string) analysis.FakeCheck
	GenerateMedicalDescription(ctx context.Context, img *analysis.Image) string
}

// AvailabilityGate answers whether a hospital may see the pending queue.
type AvailabilityGate interface {
	HasAvailableAmbulance(ctx context.Context, hospitalID uuid.UUID) (bool, error)
}

type AccountBlocker interface {
	Block(ctx context.Context, accountID uuid.UUID, reason string) error
}

// IntakeRequest is a user's submission before analysis.
type IntakeRequest struct {
	Location    *model.Location
	Address     string
	Description string
	ImageURL    string
	Image       *analysis.Image
}

// Service runs the report lifecycle: pending on submission, then exactly
// one of dispatched or false_alarm.
type Service struct {
	reports  repository.ReportRepository
	gate     AvailabilityGate
	blocker  AccountBlocker
	analyzer Analyzer
	resolver *geo.Resolver
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	reports repository.ReportRepository,
	gate AvailabilityGate,
	blocker AccountBlocker,
	analyzer Analyzer,
	resolver *geo.Resolver,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		reports:  reports,
		gate:     gate,
		blocker:  blocker,
		analyzer: analyzer,
		resolver: resolver,
		logger:   log.With("report"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Preview analyses an image without recording anything.
func (s *Service) Preview(ctx context.Context, img *analysis.Image) (analysis.Result, string) {
	desc := s.analyzer.GenerateMedicalDescription(ctx, img)
	return s.analyzer.Analyze(ctx, img), desc
}

// Intake runs the full submission flow. A false alarm blocks the account and
// no report is created.
func (s *Service) Intake(ctx context.Context, account *model.Account, req IntakeRequest) (*model.EmergencyReport, error) {
	if account.IsOperator() {
		return nil, ErrNotReporter
	}
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, ErrImageRequired
	}

	aiCtx, cancelAI := analysisContext(ctx)
	location := s.resolver.Resolve(aiCtx, req.Location, req.Address)

	description := req.Description
	if description == "" {
		description = s.analyzer.GenerateMedicalDescription(aiCtx, req.Image)
	}

	result := s.analyzer.Analyze(aiCtx, req.Image)
	check := s.analyzer.DetectFakeAlarm(aiCtx, req.Image, description)
	cancelAI()

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelWrite()

	// a degraded check never blocks anyone
	if result.Analysis.IsFakeAlarm || (check.Fake && !check.Degraded) {
		s.metrics.FakeAlarmsBlocked.Inc()
		if err := s.blocker.Block(writeCtx, account.ID, fakeAlarmBlockReason); err != nil {
			return nil, fmt.Errorf("failed to block account: %w", err)
		}
		s.logger.Warn("False alarm rejected", "account_id", account.ID.String(), "file", req.Image.FileName)
		return nil, ErrFakeAlarm
	}

	imageURL := req.ImageURL
	if imageURL == "" {
		imageURL = uploadRef(req.Image)
	}

	return s.Submit(writeCtx, model.ReportDraft{
		Account:     account,
		Location:    location,
		Description: description,
		ImageURL:    imageURL,
	}, result)
}

// analysisContext ends the analysis phase early enough to leave part of the
// caller's deadline for persisting: persistTimeout, or a third of the
// remaining time when that is shorter.
func analysisContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := persistTimeout
	if remaining := time.Until(deadline); remaining < 3*persistTimeout {
		reserve = remaining / 3
	}
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

func uploadRef(img *analysis.Image) string {
	name := path.Base(img.FileName)
	if name == "." || name == "/" {
		name = "image"
	}
	return "upload://" + img.Hash() + "/" + url.PathEscape(name)
}

// Submit records a new pending report. Analyses flagged as fake are refused.
func (s *Service) Submit(ctx context.Context, draft model.ReportDraft, result analysis.Result) (*model.EmergencyReport, error) {
	if result.Analysis.IsFakeAlarm {
		return nil, ErrFakeAlarm
	}

	a := result.Analysis
	report := &model.EmergencyReport{
		ID:            uuid.New(),
		UserID:        draft.Account.ID,
		UserPhone:     draft.Account.Phone,
		UserName:      draft.Account.DisplayName(),
		CreatedAt:     s.now(),
		Location:      draft.Location,
		Description:   draft.Description,
		AccidentType:  a.AccidentType,
		InjuredCount:  a.InjuredCount,
		TriageAnswers: a.TriageAnswers,
		ImageURL:      draft.ImageURL,
		AIAnalysis:    result.ReportAnalysis(),
		Status:        model.ReportPending,
	}

	event, err := s.event(model.EventReportSubmitted, report)
	if err != nil {
		return nil, err
	}
	if err := s.reports.Create(ctx, report, event); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.metrics.ReportsSubmitted.Inc()
	s.logger.Info("Report submitted",
		"report_id", report.ID.String(),
		"triage_level", string(a.TriageLevel),
		"degraded", result.Degraded)
	return report, nil
}

func (s *Service) event(eventType string, r *model.EmergencyReport) (*model.OutboxEvent, error) {
	event, err := model.NewOutboxEvent(eventType, model.ReportEvent{
		ReportID:    r.ID,
		UserID:      r.UserID,
		Status:      r.Status,
		TriageLevel: r.AIAnalysis.TriageLevel,
		HospitalID:  r.HospitalID,
		AmbulanceID: r.AssignedAmbulanceID,
		Location:    r.Location,
		At:          s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	return event, nil
}

// VisiblePending is the pending queue as hospitalID sees it: every pending
// report while the hospital has an available ambulance, otherwise only
// pending reports already tagged with the hospital.
func (s *Service) VisiblePending(ctx context.Context, hospitalID uuid.UUID) ([]*model.EmergencyReport, error) {
	has, err := s.gate.HasAvailableAmbulance(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	pending := model.ReportPending
	filter := model.ReportFilter{Status: &pending}
	if !has {
		filter.HospitalID = &hospitalID
	}

	list, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reports: %w", err)
	}
	return list, nil
}

// Dispatch assigns an available ambulance of hospitalID to a pending report.
// Both records change together or not at all; of two concurrent dispatches
// at most one succeeds.
func (s *Service) Dispatch(ctx context.Context, hospitalID, reportID, ambulanceID uuid.UUID) (*model.EmergencyReport, error) {
	current, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if !current.Status.CanTransition(model.ReportDispatched) {
		s.metrics.DispatchConflicts.WithLabelValues("report_not_pending").Inc()
		return nil, repository.ErrReportNotPending
	}

	at := s.now()
	preview := *current
	if err := preview.Dispatch(hospitalID, ambulanceID, at); err != nil {
		return nil, repository.ErrReportNotPending
	}
	event, err := s.event(model.EventReportDispatched, &preview)
	if err != nil {
		return nil, err
	}

	report, err := s.reports.Dispatch(ctx, repository.DispatchParams{
		ReportID:    reportID,
		AmbulanceID: ambulanceID,
		HospitalID:  hospitalID,
		At:          at,
	}, event)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReportNotPending):
			s.metrics.DispatchConflicts.WithLabelValues("report_not_pending").Inc()
		case errors.Is(err, repository.ErrAmbulanceUnavailable):
			s.metrics.DispatchConflicts.WithLabelValues("ambulance_unavailable").Inc()
		}
		return nil, fmt.Errorf("failed to dispatch report: %w", err)
	}

	s.metrics.ReportsTransitions.WithLabelValues(string(model.ReportDispatched)).Inc()
	s.logger.Info("Report dispatched",
		"report_id", reportID.String(),
		"hospital_id", hospitalID.String(),
		"ambulance_id", ambulanceID.String())
	return report, nil
}

// MarkFalseAlarm closes a pending report without dispatching. The hospital
// is recorded on the event only.
func (s *Service) MarkFalseAlarm(ctx context.Context, hospitalID, reportID uuid.UUID) (*model.EmergencyReport, error) {
	current, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if !current.Status.CanTransition(model.ReportFalseAlarm) {
		return nil, repository.ErrReportNotPending
	}

	preview := *current
	preview.Status = model.ReportFalseAlarm
	preview.HospitalID = &hospitalID
	event, err := s.event(model.EventReportFalseAlarm, &preview)
	if err != nil {
		return nil, err
	}

	report, err := s.reports.MarkFalseAlarm(ctx, reportID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to mark false alarm: %w", err)
	}

	s.metrics.ReportsTransitions.WithLabelValues(string(model.ReportFalseAlarm)).Inc()
	s.logger.Info("Report marked as false alarm", "report_id", reportID.String(), "hospital_id", hospitalID.String())
	return report, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.EmergencyReport, error) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListAll returns every report, most recent first.
func (s *Service) ListAll(ctx context.Context) ([]*model.EmergencyReport, error) {
	list, err := s.reports.List(ctx, model.ReportFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return list, nil
}

// ListForAccount returns the reports a user submitted, most recent first.
func (s *Service) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*model.EmergencyReport, error) {
	list, err := s.reports.List(ctx, model.ReportFilter{UserID: &accountID})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return list, nil
}
