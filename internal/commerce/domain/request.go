package domain

import "fmt"

// Role is the staff role carried by an authenticated request
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
)

// RequestContext identifies who is acting on which outlet. It is passed
// explicitly into every command and query.
type RequestContext struct {
	TenantID uint
	OutletID uint
	ActorID  uint
	Role     Role
}

// Validate checks that the request is scoped to a tenant and an outlet
func (rc RequestContext) Validate() error {
	if rc.TenantID == 0 {
		return fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	if rc.OutletID == 0 {
		return fmt.Errorf("%w: outlet_id is required", ErrValidation)
	}
	return nil
}

// CanManage reports whether the actor holds a managerial role
func (rc RequestContext) CanManage() bool {
	return rc.Role == RoleAdmin || rc.Role == RoleManager
}
