// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Algorithm = "pbkdf2-sha256"

	// DefaultPBKDF2Iterations はPBKDF2の既定ラウンド数。
	DefaultPBKDF2Iterations = 29000
	// MinPBKDF2Iterations は設定可能な最小ラウンド数。
	MinPBKDF2Iterations = 1000

	saltLength = 16
	keyLength  = 32
)

// PasswordHasher はパスワードの一方向ハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	// Hash はパスワードをソルト付きでハッシュ化し、エンコード済み文字列を返す。
	Hash(password string) (string, error)
	// Verify はパスワードがハッシュと一致するかを定数時間で判定する。
	// 不正な形式のハッシュに対してはfalseを返し、panicしない。
	Verify(password, hashed string) bool
}

// PBKDF2Hasher はPBKDF2-SHA256によるPasswordHasherの実装。
// エンコード形式: $pbkdf2-sha256$<rounds>$<salt>$<checksum>（パディングなしbase64）
type PBKDF2Hasher struct {
	iterations int
	rand       io.Reader
}

// NewPBKDF2Hasher はPBKDF2Hasherを生成する。
// iterationsがMinPBKDF2Iterations未満の場合はエラーを返す。
func NewPBKDF2Hasher(iterations int) (*PBKDF2Hasher, error) {
	if iterations < MinPBKDF2Iterations {
		return nil, fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", MinPBKDF2Iterations, iterations)
	}
	return &PBKDF2Hasher{iterations: iterations, rand: rand.Reader}, nil
}

// Hash はパスワードをハッシュ化する。
// 乱数源の読み取りに失敗した場合のみエラーを返す。
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLength, sha256.New)

	return fmt.Sprintf("$%s$%d$%s$%s",
		pbkdf2Algorithm,
		h.iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードとエンコード済みハッシュを照合する。
// ラウンド数はハッシュ側の値を使うため、設定変更前のハッシュも検証できる。
func (h *PBKDF2Hasher) Verify(password, hashed string) bool {
	iterations, salt, want, ok := parsePBKDF2(hashed)
	if !ok {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// parsePBKDF2 はエンコード済みハッシュを分解する。
func parsePBKDF2(hashed string) (iterations int, salt, key []byte, ok bool) {
	// 先頭の$により parts[0] は空文字になる
	parts := strings.Split(hashed, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != pbkdf2Algorithm {
		return 0, nil, nil, false
	}

	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations < 1 {
		return 0, nil, nil, false
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, false
	}

	return iterations, salt, key, true
}

// compile-time interface check
var _ PasswordHasher = (*PBKDF2Hasher)(nil)
