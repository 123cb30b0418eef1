package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/repository"
	"github.com/hitoshi/authman/internal/security"
	"github.com/hitoshi/authman/internal/token"
)

// --- モック定義 ---

// memUserRepo はテスト用のインメモリユーザーストア。
// username・emailの一意性をストレージの制約と同様に保証する。
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return m.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (m *memUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return model.NewAlreadyExistsError("username")
		}
		if u.Email == user.Email {
			return model.NewAlreadyExistsError("email")
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) Update(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memUserRepo) find(match func(*model.User) bool) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

// mutate は保存済みユーザーを直接書き換える。
func (m *memUserRepo) mutate(username string, fn func(*model.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			fn(u)
		}
	}
}

type mockRecorder struct {
	logins        map[string]int
	registrations int
	issued        map[string]int
	rejected      map[string]int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		logins:   make(map[string]int),
		issued:   make(map[string]int),
		rejected: make(map[string]int),
	}
}

func (m *mockRecorder) RecordLogin(result string)          { m.logins[result]++ }
func (m *mockRecorder) RecordRegistration()                { m.registrations++ }
func (m *mockRecorder) RecordTokenIssued(tokenType string) { m.issued[tokenType]++ }
func (m *mockRecorder) RecordTokenRejected(kind string)    { m.rejected[kind]++ }

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ Recorder = (*mockRecorder)(nil)
var _ TokenCodec = (*token.Codec)(nil)

// --- テスト用フィクスチャ ---

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	repo     *memUserRepo
	clock    *fakeClock
	codec    *token.Codec
	recorder *mockRecorder
	svc      *Service
	gate     *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hasher, err := security.NewPBKDF2Hasher(security.MinPBKDF2Iterations)
	if err != nil {
		t.Fatalf("NewPBKDF2Hasher returned error: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	codec, err := token.NewCodec(token.Config{
		Secret:     []byte("test-secret-key-that-is-32-bytes!"),
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	repo := newMemUserRepo()
	recorder := newMockRecorder()
	svc := NewService(repo, hasher, codec, recorder)
	svc.now = clock.Now

	return &fixture{
		repo:     repo,
		clock:    clock,
		codec:    codec,
		recorder: recorder,
		svc:      svc,
		gate:     NewGate(repo, codec, recorder),
	}
}

// register はテストユーザーを登録する。
func (f *fixture) register(t *testing.T, username, email, password string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register(%q) returned error: %v", username, err)
	}
	return u
}

// login はテストユーザーでログインしトークンの組を返す。
func (f *fixture) login(t *testing.T, username, password string) *model.TokenPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("Login(%q) returned error: %v", username, err)
	}
	return pair
}

func assertKind(t *testing.T, err error, want model.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := model.KindOf(err); got != want {
		t.Fatalf("error kind = %q, want %q (err=%v)", got, want, err)
	}
}
