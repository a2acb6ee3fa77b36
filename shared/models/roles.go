package models

// Роли, которые приходят в claim role от провайдера идентификации.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AllRoles возвращает слайс всех определенных ролей.
func AllRoles() []string {
	return []string{
		RoleAdmin,
		RoleUser,
	}
}

// NormalizeRole приводит роль провайдера к одной из наших. Всё неизвестное считается user.
func NormalizeRole(role string) string {
	switch role {
	case RoleAdmin, "service_role", "ROLE_ADMIN":
		return RoleAdmin
	default:
		return RoleUser
	}
}
