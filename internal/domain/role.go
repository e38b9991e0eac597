package domain

import "strings"

type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleInternal Role = "INTERNAL"
	RoleApprover Role = "APPROVER"
)

type Permission string

const (
	PermCreateRequest   Permission = "CREATE_REQUEST"
	PermViewOwnRequests Permission = "VIEW_OWN_REQUESTS"
	PermViewAllRequests Permission = "VIEW_ALL_REQUESTS"
	PermEstimateRequest Permission = "ESTIMATE_REQUEST"
	PermApproveRequest  Permission = "APPROVE_REQUEST"
	PermRejectRequest   Permission = "REJECT_REQUEST"
)

// Таблица неизменна на всё время жизни процесса. Роли плоские, без наследования.
var rolePermissions = map[Role]map[Permission]bool{
	RoleClient: {
		PermCreateRequest:   true,
		PermViewOwnRequests: true,
	},
	RoleInternal: {
		PermViewAllRequests: true,
		PermEstimateRequest: true,
	},
	RoleApprover: {
		PermViewAllRequests: true,
		PermApproveRequest:  true,
		PermRejectRequest:   true,
	},
}

// HasPermission сообщает, входит ли право в фиксированный набор роли.
func HasPermission(role Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// ParseRole принимает роль в любом регистре.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; !ok {
		return "", Unauthorized("invalid user role: %s", s)
	}
	return r, nil
}

// Actor: уже аутентифицированный пользователь, от имени которого выполняется use-case.
type Actor struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     Role   `json:"role"`
}

func (a Actor) Can(perm Permission) bool {
	return HasPermission(a.Role, perm)
}
