package models

import "context"

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

const (
	// UserContextKey используется как ключ для хранения AuthUser в контексте запроса.
	UserContextKey contextKey = "authUser"
)

// WithUser кладет пользователя в контекст.
func WithUser(ctx context.Context, user AuthUser) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext извлекает AuthUser из контекста.
func UserFromContext(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(UserContextKey).(AuthUser)
	return user, ok && user.ID != ""
}
