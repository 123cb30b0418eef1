// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// username・emailの一意性はストレージ層の制約で保証する。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	// 比較は大文字小文字を区別する。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// 比較は大文字小文字を区別する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合は model.KindAlreadyExists のエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を上書き更新する。
	// 一意制約違反の場合は model.KindAlreadyExists のエラーを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}
