// Package session 把请求头中的 Bearer token 解析为会话
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"soundwaves/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken token 无法验证
var ErrInvalidToken = errors.New("invalid session token")

// UserMetadata 外部认证服务写入 token 的用户资料
type UserMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Claims token 声明
type Claims struct {
	Email        string       `json:"email,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Resolver 用 HS256 密钥校验 token
type Resolver struct {
	secret []byte
}

// NewResolver 创建会话解析器；secret 为空时所有请求都是匿名会话
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve 解析 Authorization 头。没有 token 时返回 Anonymous。
func (r *Resolver) Resolve(authHeader string) (model.Session, error) {
	token := strings.TrimSpace(authHeader)
	if token == "" {
		return model.Anonymous{}, nil
	}
	if !strings.HasPrefix(token, "Bearer ") {
		return model.Anonymous{}, ErrInvalidToken
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if len(r.secret) == 0 {
		return model.Anonymous{}, fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return model.Anonymous{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return model.Anonymous{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	name := claims.UserMetadata.FullName
	if name == "" {
		name = claims.Email
	}
	return model.Authenticated{
		ID:          claims.Subject,
		DisplayName: name,
		AvatarURL:   claims.UserMetadata.AvatarURL,
	}, nil
}

// Issue 签发 token，供命令行和测试使用
func (r *Resolver) Issue(user model.Authenticated, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:        email,
		UserMetadata: UserMetadata{FullName: user.DisplayName, AvatarURL: user.AvatarURL},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

type contextKey struct{}

// WithSession 把会话放入 context
func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext 取出会话，没有时为 Anonymous
func FromContext(ctx context.Context) model.Session {
	if s, ok := ctx.Value(contextKey{}).(model.Session); ok && s != nil {
		return s
	}
	return model.Anonymous{}
}
