package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/pkg/auth"
	"github.com/jwalitptl/dispatch-api/pkg/geo"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/security"
)

var (
	ErrDuplicateAccount   = errors.New("email or phone already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrSessionExpired     = errors.New("session expired")
)

type Config struct {
	SessionTTL time.Duration
}

// Service owns accounts, their hospitals and sessions.
type Service struct {
	accounts  repository.AccountRepository
	hospitals repository.HospitalRepository
	sessions  repository.SessionRepository
	hasher    security.PasswordHasher
	tokens    auth.JWTService
	resolver  *geo.Resolver
	ttl       time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	accounts repository.AccountRepository,
	hospitals repository.HospitalRepository,
	sessions repository.SessionRepository,
	hasher security.PasswordHasher,
	tokens auth.JWTService,
	resolver *geo.Resolver,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Service{
		accounts:  accounts,
		hospitals: hospitals,
		sessions:  sessions,
		hasher:    hasher,
		tokens:    tokens,
		resolver:  resolver,
		ttl:       cfg.SessionTTL,
		logger:    log.With("account"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a reporting user and opens a session for it.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthSession, error) {
	account := &model.Account{
		ID:        uuid.New(),
		Email:     normalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		CI:        strings.ToUpper(strings.TrimSpace(req.CI)),
		Role:      model.RoleUser,
		CreatedAt: s.now(),
	}
	if err := s.create(ctx, account, req.Password, nil); err != nil {
		return nil, err
	}
	s.logger.Info("User registered", "account_id", account.ID.String())
	return s.openSession(ctx, account, nil)
}

// RegisterOperator creates an operator together with its hospital. The
// operator's phone is the hospital's admin phone.
func (s *Service) RegisterOperator(ctx context.Context, req model.RegisterOperatorRequest) (*model.AuthSession, error) {
	now := s.now()
	account := &model.Account{
		ID:        uuid.New(),
		Email:     normalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.AdminPhone),
		Role:      model.RoleOperator,
		CreatedAt: now,
	}
	hospital := &model.Hospital{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(req.HospitalName),
		Location:   s.resolver.Resolve(ctx, req.Location, req.Address),
		Type:       model.HospitalTypePrivate,
		AdminPhone: account.Phone,
		EntityID:   strings.TrimSpace(req.EntityID),
		Email:      account.Email,
		OperatorID: account.ID,
		CreatedAt:  now,
	}
	if err := s.create(ctx, account, req.Password, hospital); err != nil {
		return nil, err
	}
	s.logger.Info("Operator registered", "account_id", account.ID.String(), "hospital_id", hospital.ID.String())
	return s.openSession(ctx, account, hospital)
}

func (s *Service) create(ctx context.Context, account *model.Account, password string, hospital *model.Hospital) error {
	exists, err := s.accounts.ExistsByEmailOrPhone(ctx, account.Email, account.Phone)
	if err != nil {
		return fmt.Errorf("failed to check existing account: %w", err)
	}
	if exists {
		return ErrDuplicateAccount
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.PasswordHash = hash

	if err := s.accounts.Create(ctx, account, hospital); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if account.IsBlocked {
		return nil, ErrAccountBlocked
	}

	var hospital *model.Hospital
	if account.IsOperator() {
		hospital, err = s.hospitals.GetByOperator(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get operator hospital: %w", err)
		}
	}
	return s.openSession(ctx, account, hospital)
}

func (s *Service) openSession(ctx context.Context, account *model.Account, hospital *model.Hospital) (*model.AuthSession, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Role:      account.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if hospital != nil {
		session.HospitalID = &hospital.ID
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	token, err := s.tokens.GenerateSessionToken(session)
	if err != nil {
		return nil, err
	}

	return &model.AuthSession{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Account:   account,
		Hospital:  hospital,
		SessionID: session.ID,
	}, nil
}

// Authenticate resolves a bearer token to its live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.AuthSession, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, ErrSessionExpired
	}
	return s.Current(ctx, claims.SessionID)
}

// Current restores the session and re-reads its account. A session whose
// account has since been blocked is discarded.
func (s *Service) Current(ctx context.Context, sessionID string) (*model.AuthSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	account, err := s.accounts.Get(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.IsBlocked {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.Error(err, "Failed to discard blocked session", "session_id", sessionID)
		}
		return nil, ErrSessionExpired
	}

	var hospital *model.Hospital
	if session.HospitalID != nil {
		hospital, err = s.hospitals.Get(ctx, *session.HospitalID)
		if err != nil {
			return nil, fmt.Errorf("failed to get hospital: %w", err)
		}
	}

	return &model.AuthSession{
		ExpiresAt: session.ExpiresAt,
		Account:   account,
		Hospital:  hospital,
		SessionID: session.ID,
	}, nil
}

// Logout ends a session. Ending an unknown session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// EndSession logs out the session named by a signed token. The session may
// already be gone, so repeating a logout succeeds.
func (s *Service) EndSession(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return ErrSessionExpired
	}
	return s.Logout(ctx, claims.SessionID)
}

// Block permanently bans an account. Blocking a blocked account is a no-op.
func (s *Service) Block(ctx context.Context, accountID uuid.UUID, reason string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if account.IsBlocked {
		return nil
	}

	event, err := model.NewOutboxEvent(model.EventAccountBlocked, model.AccountBlockedEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Reason:    reason,
		At:        s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to build event: %w", err)
	}

	if err := s.accounts.Block(ctx, accountID, event); err != nil {
		return fmt.Errorf("failed to block account: %w", err)
	}
	s.logger.Warn("Account blocked", "account_id", accountID.String(), "reason", reason)
	return nil
}
