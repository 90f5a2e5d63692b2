package auth

import "time"

// Role is the account type stored on users.role.
type Role string

const (
	RoleShopOwner Role = "shop_owner"
	RoleConsignor Role = "consignor"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleShopOwner, RoleConsignor, RoleAdmin:
		return true
	default:
		return false
	}
}

// SelfService reports whether accounts with this role may sign themselves up.
// Admins are provisioned out of band.
func (r Role) SelfService() bool {
	return r == RoleShopOwner || r == RoleConsignor
}

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Phone        *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Phone    string
	// Role defaults to RoleConsignor when empty.
	Role Role
}

type LoginRequest struct {
	Email    string
	Password string
}
