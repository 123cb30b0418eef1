package model

// TokenType はトークンの種別を表す。
// アクセストークンとリフレッシュトークンは構造が同一のため、この種別で相互利用を防ぐ。
type TokenType string

const (
	// TokenTypeAccess はAPI呼び出し用の短命トークン。
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh はアクセストークン再発行専用の長命トークン。
	TokenTypeRefresh TokenType = "refresh"
)

// TokenTypeBearer はレスポンスのtoken_typeに設定する値。
const TokenTypeBearer = "bearer"

// TokenPair はログイン・リフレッシュで返すトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // アクセストークンの有効期間（秒）
}
