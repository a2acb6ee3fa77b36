package authutils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"storybook-server/shared/models"
)

// TokenVerifier проверяет bearer-токен и возвращает вызывающего.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, tokenString string) (models.AuthUser, error)
}

// JWTVerifier проверяет HS256 токены провайдера идентификации.
type JWTVerifier struct {
	jwtSecret []byte
	audience  string
	logger    *zap.Logger
}

// NewJWTVerifier создает новый экземпляр JWTVerifier.
// audience может быть пустым, тогда aud не проверяется.
func NewJWTVerifier(jwtSecret, audience string, logger *zap.Logger) (*JWTVerifier, error) {
	if jwtSecret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWTVerifier{
		jwtSecret: []byte(jwtSecret),
		audience:  audience,
		logger:    logger.Named("JWTVerifier"),
	}, nil
}

// VerifyToken проверяет подпись, срок действия и наличие subject.
func (v *JWTVerifier) VerifyToken(ctx context.Context, tokenString string) (models.AuthUser, error) {
	log := v.logger.With(zap.String("tokenSnippet", tokenSnippet(tokenString)))
	claims := &models.Claims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.jwtSecret, nil
	}, opts...)
	if err != nil {
		log.Warn("Failed to parse or verify token", zap.Error(err))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return models.AuthUser{}, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return models.AuthUser{}, models.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return models.AuthUser{}, models.ErrTokenInvalid
		}
		return models.AuthUser{}, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return models.AuthUser{}, models.ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		log.Warn("Token missing subject")
		return models.AuthUser{}, fmt.Errorf("%w: subject missing", models.ErrTokenInvalid)
	}

	user := models.AuthUser{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.EffectiveRole(),
	}
	log.Debug("Token verified successfully", zap.String("userID", user.ID), zap.String("role", user.Role))
	return user, nil
}

// tokenSnippet возвращает безопасную для логгирования часть токена.
func tokenSnippet(tokenString string) string {
	limit := 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
