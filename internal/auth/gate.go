package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
)

// Gate はベアラートークンから呼び出し元を特定し、認可ポリシーを適用する。
// 判定は 署名・期限 → 存在 → 有効 → ロール の順で行い、先の失敗を後の判定で上書きしない。
type Gate struct {
	userRepo repository.UserRepository
	tokens   TokenCodec
	metrics  Recorder
}

// NewGate はGateを生成する。recorderはnilでもよい。
func NewGate(userRepo repository.UserRepository, tokens TokenCodec, recorder Recorder) *Gate {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gate{
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  recorder,
	}
}

// Authenticate はアクセストークンを検証し、subjectのユーザーを返す。
// トークンが有効でもユーザーが削除済みの場合はINVALID_CREDENTIALSを返す。
func (g *Gate) Authenticate(ctx context.Context, bearer string) (*model.User, error) {
	claims, err := g.tokens.Verify(bearer, model.TokenTypeAccess)
	if err != nil {
		g.metrics.RecordTokenRejected(string(model.KindOf(err)))
		slog.Warn("access token rejected", slog.String("kind", string(model.KindOf(err))))
		return nil, err
	}

	user, err := g.userRepo.FindByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token subject: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	return user, nil
}

// RequireActive は無効化されたユーザーを拒否する。
func (g *Gate) RequireActive(user *model.User) (*model.User, error) {
	if !user.IsActive {
		return nil, model.NewInactiveUserError()
	}
	return user, nil
}

// RequireRole はユーザーのロールがallowedのいずれかに含まれなければ拒否する。
func (g *Gate) RequireRole(user *model.User, allowed ...model.Role) (*model.User, error) {
	if !user.HasRole(allowed...) {
		return nil, model.NewInsufficientPermissionsError(allowed)
	}
	return user, nil
}

// Resolve は Authenticate → RequireActive → RequireRole を順に適用する。
// allowedが空の場合はロール判定を行わない。
func (g *Gate) Resolve(ctx context.Context, bearer string, allowed ...model.Role) (*model.User, error) {
	user, err := g.Authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}
	if user, err = g.RequireActive(user); err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return user, nil
	}
	return g.RequireRole(user, allowed...)
}
