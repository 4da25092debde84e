package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ErrAuthFailed = &apierr.APIError{Code: apierr.CodeUnauthorized, Message: "invalid id or password"}

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	log    *zap.Logger
}

func NewService(db *sql.DB, secret []byte, ttl time.Duration, log *zap.Logger) *Service {
	return NewServiceWith(NewStore(db), secret, ttl, clock.Real{}, log)
}

func NewServiceWith(store AccountStore, secret []byte, ttl time.Duration, c clock.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{store: store, secret: secret, ttl: ttl, clock: c, log: log}
}

type AuthService interface {
	Login(ctx context.Context, id, password string) (string, error)
	Register(ctx context.Context, id, password, role string) error
}

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, id, password, role string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return apierr.Invalid("id must be 1-64 characters")
	}
	if len(password) < 8 {
		return apierr.Invalid("password must be at least 8 characters")
	}
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return apierr.Invalidf("unknown role %q", role)
	}

	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return apierr.Conflict("id already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.clock.Now(),
	}); err != nil {
		return err
	}
	s.log.Info("account registered", zap.String("id", id), zap.String("role", role))
	return nil
}

// EnsureAdmin は初回起動用。id が未登録なら admin として作る
func (s *Service) EnsureAdmin(ctx context.Context, id, password string) error {
	err := s.Register(ctx, id, password, RoleAdmin)
	if apierr.Is(err, apierr.CodeConflict) {
		return nil
	}
	return err
}
