package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lessonscope/internal/auth"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/metrics"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
	"lessonscope/internal/wechat"
)

const defaultNicknamePrefix = "用户"

// LoginResult is what a successful mini-program login returns.
type LoginResult struct {
	Token     string      `json:"token"`
	User      *model.User `json:"user"`
	IsNewUser bool        `json:"isNewUser"`
}

// AuthService handles login and server-side sessions.
type AuthService interface {
	WechatLogin(ctx context.Context, code string) (*LoginResult, error)
	CreateSession(ctx context.Context, userID string) (string, *model.Session, error)
	ValidateSession(ctx context.Context, token string) (*auth.Claims, error)
	Logout(ctx context.Context, token string) (bool, error)
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

type authService struct {
	store    repository.Store
	jwt      *auth.JWTService
	sessions auth.SessionCacher
	exchange wechat.CodeExchanger
	now      func() time.Time
}

// AuthOption customises an AuthService.
type AuthOption func(*authService)

// WithAuthClock sets the clock used for session expiry checks.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *authService) { s.now = now }
}

// NewAuthService creates a new authentication service.
func NewAuthService(store repository.Store, jwtService *auth.JWTService, sessions auth.SessionCacher, exchange wechat.CodeExchanger, opts ...AuthOption) AuthService {
	s := &authService{
		store:    store,
		jwt:      jwtService,
		sessions: sessions,
		exchange: exchange,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WechatLogin exchanges a login code, creates the user on first sight and
// opens a session. The first user ever created becomes admin.
func (s *authService) WechatLogin(ctx context.Context, code string) (*LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is required", apperr.ErrValidation)
	}

	ws, err := s.exchange.Code2Session(ctx, code)
	if err != nil {
		return nil, err
	}

	result, err := s.loginOpenID(ctx, ws.OpenID)
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent first login created the same openid
		result, err = s.loginOpenID(ctx, ws.OpenID)
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return result, nil
}

func (s *authService) loginOpenID(ctx context.Context, openID string) (*LoginResult, error) {
	result := &LoginResult{}
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().FindByOpenID(ctx, openID)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrNotFound):
			count, err := tx.Users().CountForUpdate(ctx)
			if err != nil {
				return err
			}
			role := model.RoleUser
			if count == 0 {
				role = model.RoleAdmin
			}
			user = &model.User{
				OpenID:   openID,
				Nickname: DefaultNickname(openID),
				Role:     role,
			}
			if err := tx.Users().Create(ctx, user); err != nil {
				return err
			}
			result.IsNewUser = true
		default:
			return err
		}

		token, _, err := s.createSession(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		result.Token = token
		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DefaultNickname is "用户" followed by the last six characters of the openid.
func DefaultNickname(openID string) string {
	runes := []rune(openID)
	if len(runes) > 6 {
		runes = runes[len(runes)-6:]
	}
	return defaultNicknamePrefix + string(runes)
}

func (s *authService) CreateSession(ctx context.Context, userID string) (string, *model.Session, error) {
	return s.createSession(ctx, s.store, userID)
}

func (s *authService) createSession(ctx context.Context, store repository.Store, userID string) (string, *model.Session, error) {
	token, claims, err := s.jwt.Issue(userID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	session := &model.Session{
		UserID:    userID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := store.Sessions().Create(ctx, session); err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// ValidateSession checks the token signature and expiry, then requires a live
// session row. Cached rows are re-checked against their expiry on every hit.
func (s *authService) ValidateSession(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}

	hash := auth.HashToken(token)
	now := s.now()

	if cached, _ := s.sessions.Get(ctx, hash); cached != nil {
		if cached.UserID == claims.UserID && now.Before(cached.ExpiresAt) {
			return claims, nil
		}
		_ = s.sessions.Evict(ctx, hash)
	}

	session, err := s.store.Sessions().FindValid(ctx, claims.UserID, hash, now)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: session revoked or expired", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	_ = s.sessions.Put(ctx, hash, auth.CachedSession{UserID: session.UserID, ExpiresAt: session.ExpiresAt}, now)
	return claims, nil
}

// Logout deletes the session behind token. It reports whether a row existed.
func (s *authService) Logout(ctx context.Context, token string) (bool, error) {
	hash := auth.HashToken(token)
	_ = s.sessions.Evict(ctx, hash)
	return s.store.Sessions().DeleteByTokenHash(ctx, hash)
}

func (s *authService) CleanExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Sessions().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}
