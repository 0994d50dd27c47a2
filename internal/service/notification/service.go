package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwalitptl/dispatch-api/internal/email"
	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

// Service turns published outbox events into emails.
type Service struct {
	hospitals repository.HospitalRepository
	emailSvc  email.Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(hospitals repository.HospitalRepository, emailSvc email.Service, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		hospitals: hospitals,
		emailSvc:  emailSvc,
		logger:    log.With("notification"),
		metrics:   m,
	}
}

func (s *Service) send(ctx context.Context, template, to, subject, body string) error {
	if err := s.emailSvc.Send(ctx, to, subject, body); err != nil {
		s.metrics.EmailsSent.WithLabelValues(template, "error").Inc()
		return err
	}
	s.metrics.EmailsSent.WithLabelValues(template, "sent").Inc()
	return nil
}

// Handle processes one message from the events channel. Event types with no
// notification attached are ignored.
func (s *Service) Handle(ctx context.Context, payload []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid event envelope: %w", err)
	}

	switch env.Type {
	case model.EventReportDispatched:
		var event model.ReportEvent
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		return s.reportDispatched(ctx, event)
	case model.EventAccountBlocked:
		var event model.AccountBlockedEvent
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		return s.accountBlocked(ctx, event)
	default:
		return nil
	}
}

func (s *Service) reportDispatched(ctx context.Context, event model.ReportEvent) error {
	if event.HospitalID == nil {
		return fmt.Errorf("dispatched report %s has no hospital", event.ReportID)
	}
	hospital, err := s.hospitals.Get(ctx, *event.HospitalID)
	if err != nil {
		return fmt.Errorf("failed to get hospital: %w", err)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Report %s was dispatched by %s.\n", event.ReportID, hospital.Name)
	fmt.Fprintf(&body, "Triage level: %s\n", event.TriageLevel)
	if event.AmbulanceID != nil {
		fmt.Fprintf(&body, "Ambulance: %s\n", *event.AmbulanceID)
	}
	fmt.Fprintf(&body, "Location: %.6f, %.6f\n", event.Location.Latitude, event.Location.Longitude)
	fmt.Fprintf(&body, "Dispatched at: %s\n", event.At.Format("2006-01-02 15:04:05 MST"))

	subject := fmt.Sprintf("[%s] Ambulance dispatched", event.TriageLevel)
	if err := s.send(ctx, "dispatched", hospital.Email, subject, body.String()); err != nil {
		return err
	}
	s.logger.Info("Dispatch notification sent", "report_id", event.ReportID.String(), "hospital_id", hospital.ID.String())
	return nil
}

func (s *Service) accountBlocked(ctx context.Context, event model.AccountBlockedEvent) error {
	body := fmt.Sprintf(
		"Your account was blocked on %s.\nReason: %s\n\nAccounts that submit false alarms cannot file new reports.\n",
		event.At.Format("2006-01-02"), event.Reason)

	if err := s.send(ctx, "blocked", event.Email, "Your account has been blocked", body); err != nil {
		return err
	}
	s.logger.Info("Block notification sent", "account_id", event.AccountID.String())
	return nil
}
