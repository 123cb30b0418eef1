// Package token はアクセストークン・リフレッシュトークンの発行と検証を提供する。
// トークンはHMAC署名付きJWTで、subject・有効期限・種別を保持する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/authman/internal/model"
)

// Config はトークンコーデックの設定。
// 起動時に1回だけ構築し、以降は変更しない。
type Config struct {
	Secret     []byte        // 署名鍵（必須）
	Algorithm  string        // HS256, HS384, HS512 のいずれか。空の場合はHS256
	AccessTTL  time.Duration // アクセストークンの既定有効期間
	RefreshTTL time.Duration // リフレッシュトークンの既定有効期間

	// Now は現在時刻を返す。nilの場合はtime.Nowを使う。
	Now func() time.Time
}

// Claims はトークンに埋め込むクレーム。
type Claims struct {
	Type model.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Codec はトークンの発行・検証を行う。
// 状態は不変のため、複数ゴルーチンから同時に使用できる。
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec はCodecを生成する。
// 署名鍵が空、アルゴリズムが未対応、TTLが0以下の場合はエラーを返す。
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %q", alg)
	}

	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive: access=%s refresh=%s", cfg.AccessTTL, cfg.RefreshTTL)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret:     secret,
		method:     method,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

// TTL は種別ごとの既定有効期間を返す。
func (c *Codec) TTL(typ model.TokenType) time.Duration {
	if typ == model.TokenTypeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue はsubjectと種別を埋め込んだトークンを発行する。
// ttlOverrideに正の値を指定した場合は既定の有効期間の代わりに使う。
// エラーは署名処理の内部障害の場合のみ返す。
func (c *Codec) Issue(subject string, typ model.TokenType, ttlOverride ...time.Duration) (string, error) {
	ttl := c.TTL(typ)
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}

	now := c.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify はトークンを検証し、クレームを返す。
//
// 検証順序:
//  1. 署名・構造（不正ならINVALID_TOKEN）
//  2. 有効期限（now >= exp ならTOKEN_EXPIRED）
//  3. subjectの存在（なければINVALID_TOKEN）
//  4. 種別の一致（不一致ならINVALID_TOKEN）
//
// 署名検証が他のすべての検査より先に行われるため、偽造トークンの失敗理由は外部に漏れない。
func (c *Codec) Verify(tokenString string, expected model.TokenType) (*Claims, error) {
	claims := &Claims{}

	// golang-jwt v5は署名検証の後にクレーム検証を行う
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError()
		}
		return nil, model.NewInvalidTokenError()
	}

	if claims.Subject == "" {
		return nil, model.NewInvalidTokenError()
	}

	if claims.Type != expected {
		return nil, model.NewInvalidTokenError()
	}

	return claims, nil
}
