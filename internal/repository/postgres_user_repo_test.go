package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/authman/internal/database"
	"github.com/hitoshi/authman/internal/model"
	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestUniqueViolationError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantNil   bool
	}{
		{
			name:      "username重複",
			err:       &pq.Error{Code: "23505", Constraint: "users_username_key"},
			wantField: "username",
		},
		{
			name:      "email重複",
			err:       &pq.Error{Code: "23505", Constraint: "users_email_key"},
			wantField: "email",
		},
		{
			name:      "ラップされたエラー",
			err:       fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Constraint: "users_email_key"}),
			wantField: "email",
		},
		{
			name:    "未知の一意制約",
			err:     &pq.Error{Code: "23505", Constraint: "users_pkey"},
			wantNil: true,
		},
		{
			name:    "一意制約以外のPostgreSQLエラー",
			err:     &pq.Error{Code: "23514", Constraint: "users_role_check"},
			wantNil: true,
		},
		{
			name:    "PostgreSQL以外のエラー",
			err:     errors.New("connection refused"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := uniqueViolationError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected APIError, got nil")
			}
			if got.Code != model.KindAlreadyExists {
				t.Errorf("Code = %q, want %q", got.Code, model.KindAlreadyExists)
			}
			if got.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", got.Field, tt.wantField)
			}
		})
	}
}

// setupUserRepo はマイグレーション済みのテスト用データベースでリポジトリを生成する。
// TEST_DATABASE_URL が未設定の場合はスキップする。
func setupUserRepo(t *testing.T) (*PostgresUserRepo, *sql.DB) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE users`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	return NewPostgresUserRepo(db), db
}

func newTestUser(username, email string) *model.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		Role:           model.RoleUser,
		HashedPassword: "$pbkdf2-sha256$1000$c2FsdA$a2V5",
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	repo, _ := setupUserRepo(t)
	ctx := context.Background()

	user := newTestUser("alice", "alice@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	finders := map[string]func() (*model.User, error){
		"FindByID":       func() (*model.User, error) { return repo.FindByID(ctx, user.ID) },
		"FindByUsername": func() (*model.User, error) { return repo.FindByUsername(ctx, "alice") },
		"FindByEmail":    func() (*model.User, error) { return repo.FindByEmail(ctx, "alice@example.com") },
	}
	for name, find := range finders {
		t.Run(name, func(t *testing.T) {
			got, err := find()
			if err != nil {
				t.Fatalf("%s returned error: %v", name, err)
			}
			if got == nil {
				t.Fatal("expected user, got nil")
			}
			if got.ID != user.ID || got.Username != user.Username || got.Role != model.RoleUser || !got.IsActive {
				t.Errorf("unexpected user: %+v", got)
			}
		})
	}
}

func TestPostgresUserRepo_Find_CaseSensitive(t *testing.T) {
	repo, _ := setupUserRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, newTestUser("alice", "alice@example.com")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.FindByUsername(ctx, "Alice")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for different case, got %+v", got)
	}
}

func TestPostgresUserRepo_FindNotFound_ReturnsNil(t *testing.T) {
	repo, _ := setupUserRepo(t)

	got, err := repo.FindByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestPostgresUserRepo_Create_Duplicate_ReturnsAlreadyExists(t *testing.T) {
	repo, _ := setupUserRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, newTestUser("alice", "alice@example.com")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	err := repo.Create(ctx, newTestUser("alice", "other@example.com"))
	if !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}

	err = repo.Create(ctx, newTestUser("bob", "alice@example.com"))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Field != "email" {
		t.Fatalf("expected ALREADY_EXISTS on email, got %v", err)
	}
}

func TestPostgresUserRepo_UpdateAndDelete(t *testing.T) {
	repo, _ := setupUserRepo(t)
	ctx := context.Background()

	user := newTestUser("alice", "alice@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	user.Email = "alice2@example.com"
	user.Role = model.RoleModerator
	user.IsActive = false
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := repo.FindByID(ctx, user.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID returned %v, %v", got, err)
	}
	if got.Email != "alice2@example.com" || got.Role != model.RoleModerator || got.IsActive {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := repo.DeleteByID(ctx, user.ID); err != nil {
		t.Fatalf("DeleteByID returned error: %v", err)
	}
	if err := repo.DeleteByID(ctx, user.ID); err == nil {
		t.Error("expected error when deleting missing user")
	}
}
