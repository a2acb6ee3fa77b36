package authutils

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"storybook-server/shared/models"
)

// idTokenVerifier - часть *auth.Client, которая нужна верификатору.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier проверяет Firebase ID токены.
type FirebaseVerifier struct {
	client idTokenVerifier
	logger *zap.Logger
}

// NewFirebaseVerifier создает верификатор по файлу ключа сервис-аккаунта.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsPath string, logger *zap.Logger) (*FirebaseVerifier, error) {
	if credentialsPath == "" {
		return nil, errors.New("firebase credentials path cannot be empty")
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app from '%s': %w", credentialsPath, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase auth client: %w", err)
	}
	logger.Info("Firebase verifier initialized", zap.String("project_id", projectID))
	return &FirebaseVerifier{client: client, logger: logger.Named("FirebaseVerifier")}, nil
}

// VerifyToken проверяет ID токен через Firebase Admin SDK.
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, tokenString string) (models.AuthUser, error) {
	token, err := v.client.VerifyIDToken(ctx, tokenString)
	if err != nil {
		v.logger.Warn("Firebase token verification failed", zap.String("tokenSnippet", tokenSnippet(tokenString)), zap.Error(err))
		if fbauth.IsIDTokenExpired(err) {
			return models.AuthUser{}, models.ErrTokenExpired
		}
		return models.AuthUser{}, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if token.UID == "" {
		return models.AuthUser{}, fmt.Errorf("%w: uid missing", models.ErrTokenInvalid)
	}

	user := models.AuthUser{ID: token.UID, Role: models.RoleUser}
	if email, ok := token.Claims["email"].(string); ok {
		user.Email = email
	}
	if role, ok := token.Claims["role"].(string); ok {
		user.Role = models.NormalizeRole(role)
	}
	if admin, ok := token.Claims["admin"].(bool); ok && admin {
		user.Role = models.RoleAdmin
	}
	return user, nil
}

// ChainVerifier пробует верификаторы по очереди и возвращает первого успешного пользователя.
type ChainVerifier []TokenVerifier

func (c ChainVerifier) VerifyToken(ctx context.Context, tokenString string) (models.AuthUser, error) {
	if len(c) == 0 {
		return models.AuthUser{}, models.ErrMisconfigured
	}
	var firstErr error
	for _, v := range c {
		user, err := v.VerifyToken(ctx, tokenString)
		if err == nil {
			return user, nil
		}
		// Истекший токен не станет валидным у другого провайдера.
		if errors.Is(err, models.ErrTokenExpired) {
			return models.AuthUser{}, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return models.AuthUser{}, firstErr
}
