package domain

import "strings"

// Role of an authenticated caller.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

// Requester identifies the caller of an access-controlled operation.
type Requester struct {
	UserID string
	Role   Role
}

// Capability names something a requester may be allowed to do.
type Capability string

const (
	CapReadOrder     Capability = "orders.read"
	CapCancelOrder   Capability = "orders.cancel"
	CapListAllOrders Capability = "orders.list_all"
	CapUpdateStatus  Capability = "orders.update_status"
	CapPayOrder      Capability = "payments.create"
	CapReadPayment   Capability = "payments.read"
)

// Elevated reports whether the role may act on other users' orders.
func (r Role) Elevated() bool {
	switch Role(strings.ToUpper(string(r))) {
	case RoleAdmin, RoleManager:
		return true
	}
	return false
}

// Authorize is the single capability check of the order core. ownerID is the owning user of the
// resource, empty for collection-level capabilities.
func Authorize(req Requester, capability Capability, ownerID string) error {
	if strings.TrimSpace(req.UserID) == "" {
		return Newf(ErrAccessDenied, "authentication required")
	}
	isOwner := ownerID != "" && ownerID == req.UserID
	switch capability {
	case CapReadOrder, CapCancelOrder, CapReadPayment:
		if isOwner || req.Role.Elevated() {
			return nil
		}
	case CapPayOrder:
		if isOwner {
			return nil
		}
	case CapListAllOrders, CapUpdateStatus:
		if req.Role.Elevated() {
			return nil
		}
	}
	return Newf(ErrAccessDenied, "access denied")
}
