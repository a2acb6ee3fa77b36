package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/shared/authutils"
	"storybook-server/shared/models"
)

const ginUserKey = "auth_user"

// AuthMiddleware проверяет bearer-токен и кладет AuthUser в контекст gin и запроса.
func AuthMiddleware(verifier authutils.TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AuthMiddleware")
	return func(c *gin.Context) {
		if verifier == nil {
			AbortWithError(c, models.ErrMisconfigured)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Debug("Authorization header missing", zap.String("path", c.Request.URL.Path))
			AbortWithError(c, models.ErrMissingToken)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			log.Warn("Malformed Authorization header", zap.String("path", c.Request.URL.Path))
			AbortWithError(c, models.ErrMissingToken)
			return
		}

		user, err := verifier.VerifyToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ginUserKey, user)
		c.Request = c.Request.WithContext(models.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// RequireRole пропускает только пользователей с указанной ролью.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok {
			AbortWithError(c, models.ErrUnauthorized)
			return
		}
		if user.Role != role {
			AbortWithError(c, models.ErrInsufficientRoles)
			return
		}
		c.Next()
	}
}

// GetUser возвращает аутентифицированного пользователя из контекста gin.
func GetUser(c *gin.Context) (models.AuthUser, bool) {
	v, exists := c.Get(ginUserKey)
	if !exists {
		return models.AuthUser{}, false
	}
	user, ok := v.(models.AuthUser)
	return user, ok && user.ID != ""
}

// AbortWithError прерывает обработку и пишет JSON ошибки в стандартном формате.
func AbortWithError(c *gin.Context, err error) {
	appErr := models.ClassifyError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(appErr.Status, models.NewErrorResponse(appErr))
}
