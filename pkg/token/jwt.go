package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType 用于区分访问令牌和刷新令牌
// 防止拿 refresh token 冒充 access token 访问 API
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const issuer = "taxonomy-admin"

// ErrInvalidTokenType 表示令牌类型与用途不符，比如拿 access token 刷新
var ErrInvalidTokenType = errors.New("invalid token type")

// JWTManager 是 JWT 管理器，负责签发和验证令牌。
// 令牌由外部身份系统（或运维脚本）用同一个密钥签发，本服务只做校验。
type JWTManager struct {
	secretKey            []byte
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
}

// Subject 是令牌携带的调用方身份
type Subject struct {
	Username string
	// Roles 是调用方持有的角色，与节点编辑者角色同名
	Roles []string
	// TaxonomyAdmin 表示调用方可以维护分类树定义，并可级联设置编辑者
	TaxonomyAdmin bool
}

// CustomClaims 嵌入 jwt.RegisteredClaims，ID（jti）用 uuid 生成，便于日志追踪
type CustomClaims struct {
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	TaxonomyAdmin bool     `json:"taxonomy_admin"`
	TokenType     string   `json:"token_type"`
	jwt.RegisteredClaims
}

// HasRole 判断调用方是否持有 role
func (c *CustomClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func NewJWTManager(secretKey string, accessTokenDuration, refreshTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:            []byte(secretKey),
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
	}
}

// GenerateToken 生成访问令牌和刷新令牌
func (manager *JWTManager) GenerateToken(subject Subject) (string, string, error) {
	now := time.Now()

	accessToken, err := manager.sign(subject, TokenTypeAccess, now, now.Add(manager.accessTokenDuration))
	if err != nil {
		return "", "", err
	}
	refreshToken, err := manager.sign(subject, TokenTypeRefresh, now, now.Add(manager.refreshTokenDuration))
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (manager *JWTManager) sign(subject Subject, tokenType string, now, exp time.Time) (string, error) {
	claims := &CustomClaims{
		Username:      subject.Username,
		Roles:         subject.Roles,
		TaxonomyAdmin: subject.TaxonomyAdmin,
		TokenType:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject.Username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.secretKey)
}

// VerifyToken 验证令牌签名和有效期，返回 CustomClaims
func (manager *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return manager.secretKey, nil
	},
		// 只允许 HS256，防止 alg=none 之类的算法篡改
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}
	return token.Claims.(*CustomClaims), nil
}

// Refresh 用刷新令牌换一对新令牌，身份和角色从旧令牌原样带过来。
func (manager *JWTManager) Refresh(refreshToken string) (string, string, error) {
	claims, err := manager.VerifyToken(refreshToken)
	if err != nil {
		return "", "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", "", ErrInvalidTokenType
	}
	return manager.GenerateToken(Subject{
		Username:      claims.Username,
		Roles:         claims.Roles,
		TaxonomyAdmin: claims.TaxonomyAdmin,
	})
}
