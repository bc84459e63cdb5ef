package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/memoist-io/idserver/internal/mq"
	"github.com/memoist-io/idserver/internal/password"
	"github.com/memoist-io/idserver/internal/store"
	"github.com/memoist-io/idserver/internal/token"
	"github.com/memoist-io/idserver/types"
)

const (
	// DefaultListLimit applies when a list request names no page size.
	DefaultListLimit = 50
	// MaxListLimit caps the page size of list requests.
	MaxListLimit = 100

	tokenTypeBearer = "bearer"
)

var (
	// ErrInvalidInput marks malformed input, including malformed
	// identifiers. Surfaced as a bad request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized covers every authentication failure: unknown
	// username, wrong password, bad/expired token, missing or unknown
	// subject, inactive account on refresh. The message stays generic
	// so callers cannot learn which check failed.
	ErrUnauthorized = errors.New("incorrect username or password")

	// ErrNotRefreshToken marks a refresh attempt with a token that is
	// not of the refresh kind. Unlike other token failures it is a bad
	// request, not an authentication failure.
	ErrNotRefreshToken = errors.New("invalid refresh token")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, isActive *bool, offset, limit int) ([]types.User, int, error)
	ExistsEmailOrUsername(ctx context.Context, email, username string, excludeID uuid.UUID) (bool, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Counts(ctx context.Context) (total, active int, err error)
}

// UserService encapsulates the account use-cases: registration,
// authentication, session issuance and account management.
type UserService struct {
	repo   UserRepository
	hasher *password.Hasher
	codec  *token.Codec
	events *mq.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewUserService constructs a UserService. events may be nil, which
// disables lifecycle event publishing.
func NewUserService(repo UserRepository, hasher *password.Hasher, codec *token.Codec, events *mq.Publisher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		codec:  codec,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a new account. The email and username must be
// unique; the password is stored only as a hash.
func (s *UserService) Register(ctx context.Context, email, username string, fullName *string, plaintext string) (types.User, error) {
	if email == "" || username == "" || plaintext == "" {
		return types.User{}, ErrInvalidInput
	}

	// Fast-path check; the store's unique constraints remain the
	// source of truth under concurrent registration.
	exists, err := s.repo.ExistsEmailOrUsername(ctx, email, username, uuid.Nil)
	if err != nil {
		return types.User{}, err
	}
	if exists {
		return types.User{}, store.ErrConflict
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return types.User{}, err
	}

	now := s.now().UTC()
	user := types.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		FullName:     fullName,
		IsActive:     true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, err
	}

	s.publishEvent(ctx, mq.EventAccountRegistered, created)
	s.logger.InfoContext(ctx, "user registered", "username", created.Username, "user_id", created.ID)
	return created, nil
}

// Authenticate verifies the username/password pair and stamps the
// last-login time. Unknown usernames and wrong passwords fail the same
// way.
func (s *UserService) Authenticate(ctx context.Context, username, plaintext string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, err
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return types.User{}, ErrUnauthorized
	}

	at := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return types.User{}, err
	}
	user.LastLogin = &at

	s.publishEvent(ctx, mq.EventAccountLogin, user)
	s.logger.InfoContext(ctx, "user logged in", "username", user.Username, "user_id", user.ID)
	return user, nil
}

// IssueSessionPair signs a fresh access/refresh token pair for user,
// with the account id as subject and the username embedded for
// convenience.
func (s *UserService) IssueSessionPair(user types.User) (types.TokenPair, error) {
	extra := map[string]any{"username": user.Username}
	subject := user.ID.String()

	access, err := s.codec.IssueAccess(subject, extra, 0)
	if err != nil {
		return types.TokenPair{}, err
	}
	refresh, err := s.codec.IssueRefresh(subject, extra, 0)
	if err != nil {
		return types.TokenPair{}, err
	}

	return types.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
	}, nil
}

// AuthenticateToken resolves a bearer token to the account it claims.
// Decode failure, a missing or malformed subject, and a lookup miss all
// collapse to the same ErrUnauthorized, so callers cannot learn which
// check failed.
func (s *UserService) AuthenticateToken(ctx context.Context, tokenString string) (types.User, error) {
	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	subject, _ := claims["sub"].(string)
	uid, err := uuid.Parse(subject)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}
	return user, nil
}

// RefreshSession exchanges a refresh token for a fresh pair. The old
// refresh token stays valid until its own expiry; there is no
// revocation store.
func (s *UserService) RefreshSession(ctx context.Context, refreshToken string) (types.TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return types.TokenPair{}, ErrUnauthorized
	}
	if kind, _ := claims[token.TypeClaim].(string); kind != token.KindRefresh {
		return types.TokenPair{}, ErrNotRefreshToken
	}

	subject, _ := claims["sub"].(string)
	uid, err := uuid.Parse(subject)
	if err != nil {
		return types.TokenPair{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, ErrUnauthorized
		}
		return types.TokenPair{}, err
	}
	if !user.IsActive {
		return types.TokenPair{}, ErrUnauthorized
	}

	return s.IssueSessionPair(user)
}

// Get loads one account by its string identifier.
func (s *UserService) Get(ctx context.Context, id string) (types.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, uid)
}

// List returns a page of accounts ordered by creation time, newest
// first, plus the total size of the filtered set.
func (s *UserService) List(ctx context.Context, isActive *bool, skip, limit int) ([]types.User, int, error) {
	if skip < 0 {
		return nil, 0, ErrInvalidInput
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, isActive, skip, limit)
}

// Update applies the non-nil fields of upd to the account. Email and
// username changes are re-checked for uniqueness against all other
// accounts.
func (s *UserService) Update(ctx context.Context, id string, upd types.UserUpdate) (types.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.User{}, ErrInvalidInput
	}

	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return types.User{}, err
	}

	var checkEmail, checkUsername string
	if upd.Email != nil {
		if *upd.Email == "" {
			return types.User{}, ErrInvalidInput
		}
		checkEmail = *upd.Email
	}
	if upd.Username != nil {
		if *upd.Username == "" {
			return types.User{}, ErrInvalidInput
		}
		checkUsername = *upd.Username
	}
	if checkEmail != "" || checkUsername != "" {
		exists, err := s.repo.ExistsEmailOrUsername(ctx, checkEmail, checkUsername, uid)
		if err != nil {
			return types.User{}, err
		}
		if exists {
			return types.User{}, store.ErrConflict
		}
	}

	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.FullName != nil {
		user.FullName = upd.FullName
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	user.UpdatedAt = s.now().UTC()

	return s.repo.Update(ctx, user)
}

// Delete removes an account permanently.
func (s *UserService) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrInvalidInput
	}

	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, uid); err != nil {
		return err
	}

	s.publishEvent(ctx, mq.EventAccountDeleted, user)
	s.logger.InfoContext(ctx, "user deleted", "username", user.Username, "user_id", user.ID)
	return nil
}

// Stats returns aggregate account counts. The inactive count is
// derived, not stored.
func (s *UserService) Stats(ctx context.Context) (types.UserStats, error) {
	total, active, err := s.repo.Counts(ctx)
	if err != nil {
		return types.UserStats{}, err
	}
	return types.UserStats{
		TotalUsers:    total,
		ActiveUsers:   active,
		InactiveUsers: total - active,
	}, nil
}

// publishEvent emits a lifecycle event best-effort. Broker failures are
// logged and never surfaced to the request.
func (s *UserService) publishEvent(ctx context.Context, event string, user types.User) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishAccountEvent(ctx, mq.AccountEvent{
		Event:      event,
		UserID:     user.ID.String(),
		Username:   user.Username,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish account event", "event", event, "user_id", user.ID, "error", err)
	}
}
