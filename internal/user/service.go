// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/security"
)

// DeleteConfirmationText は退会時の確認文字列。大文字小文字を区別して完全一致で比較する。
const DeleteConfirmationText = "DELETE MY ACCOUNT"

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// Service はユーザー管理のサービス層。
// プロフィール更新・退会・ロール管理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasher
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher security.PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		now:      time.Now,
	}
}

// UpdateProfile は認証済みユーザーのプロフィールを部分更新する。
// 変更されたusername、emailの順に重複を確認する。ロールと有効フラグは変更できない。
func (s *Service) UpdateProfile(ctx context.Context, current *model.User, in ProfileUpdate) (*model.User, error) {
	updated := *current

	if in.Username != nil && *in.Username != current.Username {
		existing, err := s.userRepo.FindByUsername(ctx, *in.Username)
		if err != nil {
			return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
		}
		if existing != nil {
			return nil, model.NewAlreadyExistsError("username")
		}
		updated.Username = *in.Username
	}

	if in.Email != nil && *in.Email != current.Email {
		existing, err := s.userRepo.FindByEmail(ctx, *in.Email)
		if err != nil {
			return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
		}
		if existing != nil {
			return nil, model.NewAlreadyExistsError("email")
		}
		updated.Email = *in.Email
	}

	if in.Password != nil {
		hashed, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		updated.HashedPassword = hashed
	}

	updated.UpdatedAt = s.now()

	if err := s.userRepo.Update(ctx, &updated); err != nil {
		if model.KindOf(err) == model.KindAlreadyExists {
			return nil, err
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", updated.ID),
		slog.Bool("username_changed", updated.Username != current.Username),
		slog.Bool("email_changed", updated.Email != current.Email),
		slog.Bool("password_changed", in.Password != nil),
	)

	return &updated, nil
}

// DeleteAccount は本人確認の上でユーザーを削除する。
// パスワードの再確認を先に行い、確認文字列は指定された場合のみ検証する。
func (s *Service) DeleteAccount(ctx context.Context, current *model.User, password string, confirmText *string) error {
	if !s.hasher.Verify(password, current.HashedPassword) {
		slog.Warn("退会時のパスワード確認に失敗しました", slog.String("user_id", current.ID))
		return model.NewInvalidPasswordConfirmationError()
	}

	if confirmText != nil && *confirmText != DeleteConfirmationText {
		return model.NewInvalidConfirmationTextError(DeleteConfirmationText)
	}

	if err := s.userRepo.DeleteByID(ctx, current.ID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", current.ID))

	return nil
}

// SetRoleAndStatus は指定ユーザーのロールと有効フラグを変更する。
// 管理者向けAPIと初期管理者作成コマンドから利用する。nilのフィールドは変更しない。
func (s *Service) SetRoleAndStatus(ctx context.Context, username string, role *model.Role, active *bool) (*model.User, error) {
	if role != nil && !role.IsValid() {
		return nil, model.NewValidationError(map[string]string{"role": "admin, moderator, user のいずれかを指定してください"})
	}

	target, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}

	previous := target.Role
	if role != nil {
		target.Role = *role
	}
	if active != nil {
		target.IsActive = *active
	}
	target.UpdatedAt = s.now()

	if err := s.userRepo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("ロールと状態を変更しました",
		slog.String("user_id", target.ID),
		slog.String("previous_role", string(previous)),
		slog.String("role", string(target.Role)),
		slog.Bool("is_active", target.IsActive),
	)

	return target, nil
}
