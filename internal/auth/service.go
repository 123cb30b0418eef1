// Package auth はユーザー登録・ログイン・トークン再発行と、リクエストごとの認可判定を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/security"
	"github.com/hitoshi/authman/internal/token"
)

// TokenCodec はトークンの発行・検証インターフェース。
type TokenCodec interface {
	Issue(subject string, typ model.TokenType, ttlOverride ...time.Duration) (string, error)
	Verify(tokenString string, expected model.TokenType) (*token.Claims, error)
	TTL(typ model.TokenType) time.Duration
}

// Recorder は認証イベントのメトリクス記録インターフェース。
type Recorder interface {
	RecordLogin(result string)
	RecordRegistration()
	RecordTokenIssued(tokenType string)
	RecordTokenRejected(kind string)
}

// RegisterInput はユーザー登録の入力。
// 形式の検証は呼び出し側で済んでいること。
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasher
	tokens   TokenCodec
	metrics  Recorder
	now      func() time.Time

	// dummyHash は存在しないユーザーのログイン時に照合に使うハッシュ。
	dummyHash string
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	hasher security.PasswordHasher,
	tokens TokenCodec,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		slog.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
	}

	return &Service{
		userRepo:  userRepo,
		hasher:    hasher,
		tokens:    tokens,
		metrics:   recorder,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// Register は新規ユーザーを登録する。
// username、emailの順に重複を確認し、最初の違反を返す。
// 事前確認は競合に対して不完全なため、最終的な一意性はストレージの制約で保証する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("username")
	}

	existing, err = s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("email")
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:             uuid.New().String(),
		Username:       in.Username,
		Email:          in.Email,
		Role:           model.RoleUser,
		HashedPassword: hashed,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if model.KindOf(err) == model.KindAlreadyExists {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordRegistration()
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login は認証情報を照合し、アクセストークンとリフレッシュトークンを発行する。
// ユーザー不在とパスワード不一致は同じエラーを返す。
// 無効化の確認はパスワード照合に成功した後にのみ行う。
func (s *Service) Login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在が推測されないよう照合だけは行う
		s.hasher.Verify(password, s.dummyHash)
		return nil, s.loginFailed(username)
	}
	if !s.hasher.Verify(password, user.HashedPassword) {
		return nil, s.loginFailed(username)
	}

	if !user.IsActive {
		s.metrics.RecordLogin(metrics.LoginResultInactive)
		slog.Warn("login rejected for inactive user", slog.String("user_id", user.ID))
		return nil, model.NewInactiveUserError()
	}

	access, err := s.issue(user.Username, model.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issue(user.Username, model.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(metrics.LoginResultSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return s.pair(access, refresh), nil
}

// Refresh はリフレッシュトークンから新しいアクセストークンを発行する。
// リフレッシュトークンはローテーションせず、そのまま返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, model.TokenTypeRefresh)
	if err != nil {
		s.metrics.RecordTokenRejected(string(model.KindOf(err)))
		return nil, err
	}

	user, err := s.userRepo.FindByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.IsActive {
		return nil, model.NewInactiveUserError()
	}

	access, err := s.issue(user.Username, model.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	slog.Info("access token refreshed", slog.String("user_id", user.ID))

	return s.pair(access, refreshToken), nil
}

func (s *Service) loginFailed(username string) error {
	s.metrics.RecordLogin(metrics.LoginResultInvalidCredentials)
	slog.Warn("login failed", slog.String("username", username))
	return model.NewInvalidCredentialsError()
}

func (s *Service) issue(subject string, typ model.TokenType) (string, error) {
	tok, err := s.tokens.Issue(subject, typ)
	if err != nil {
		return "", fmt.Errorf("failed to issue %s token: %w", typ, err)
	}
	s.metrics.RecordTokenIssued(string(typ))
	return tok, nil
}

func (s *Service) pair(access, refresh string) *model.TokenPair {
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    int(s.tokens.TTL(model.TokenTypeAccess) / time.Second),
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string)         {}
func (nopRecorder) RecordRegistration()        {}
func (nopRecorder) RecordTokenIssued(string)   {}
func (nopRecorder) RecordTokenRejected(string) {}
