package models

import "github.com/golang-jwt/jwt/v5"

// Claims - поля JWT провайдера идентификации. Subject содержит ID пользователя.
type Claims struct {
	Email       string         `json:"email,omitempty"`
	Role        string         `json:"role,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// EffectiveRole учитывает роль из app_metadata, если она задана.
func (c *Claims) EffectiveRole() string {
	if c.AppMetadata != nil {
		if role, ok := c.AppMetadata["role"].(string); ok && role != "" {
			return NormalizeRole(role)
		}
	}
	return NormalizeRole(c.Role)
}

// AuthUser - аутентифицированный вызывающий.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsAdmin сообщает, есть ли у пользователя административная роль.
func (u AuthUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAccess проверяет владение ресурсом: владелец или админ.
func (u AuthUser) CanAccess(ownerID string) bool {
	return AuthorizeOwnership(ownerID, u.ID) || u.IsAdmin()
}

// AuthorizeOwnership - строгая проверка владения без учета ролей.
func AuthorizeOwnership(resourceOwnerID, callerID string) bool {
	return resourceOwnerID != "" && resourceOwnerID == callerID
}
