// Package access holds the authorization rules for bookings and the catalog.
package access

import (
	"bikeservice/internal/domain"
	"bikeservice/internal/models"
)

// CanListAll reports whether role sees every booking rather than its own.
func CanListAll(role models.Role) bool {
	return role == models.RoleOwner
}

func CanView(actor domain.Identity, booking *models.Booking) bool {
	switch actor.Role {
	case models.RoleOwner:
		return true
	case models.RoleCustomer:
		return booking.CustomerID == actor.UserID
	default:
		return false
	}
}

// CanCreate reports whether role may place bookings. Owners run the shop
// and do not book for themselves.
func CanCreate(role models.Role) bool {
	return role == models.RoleCustomer
}

func CanMutateStatus(role models.Role) bool {
	return role == models.RoleOwner
}

func CanManageCatalog(role models.Role) bool {
	return role == models.RoleOwner
}

// CheckView returns a forbidden error when actor may not read booking.
func CheckView(actor domain.Identity, booking *models.Booking) error {
	if !CanView(actor, booking) {
		return domain.Forbiddenf("not authorized to view this booking")
	}
	return nil
}

// CheckCancel applies the cancellation rules. Ownership is checked before
// status so a stranger never learns the booking's state.
func CheckCancel(actor domain.Identity, booking *models.Booking) error {
	switch actor.Role {
	case models.RoleOwner:
		if booking.Status.IsTerminal() {
			return domain.InvalidStatef("cannot cancel a %s booking", booking.Status)
		}
		return nil
	case models.RoleCustomer:
		if booking.CustomerID != actor.UserID {
			return domain.Forbiddenf("not authorized to cancel this booking")
		}
		if !booking.Status.CustomerCancellable() {
			return domain.InvalidStatef("can only cancel pending or confirmed bookings")
		}
		return nil
	default:
		return domain.Forbiddenf("not authorized to cancel this booking")
	}
}
