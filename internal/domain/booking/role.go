package booking

import (
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
)

type Role int

const (
	RoleClient Role = iota
	RoleAdmin
)

// ParseRole maps a token role claim. Anything unknown is a plain client.
func ParseRole(s string) Role {
	if s == "admin" || s == "ADMIN" {
		return RoleAdmin
	}
	return RoleClient
}

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "client"
}

// Caller is an already authenticated principal.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) Privileged() bool {
	return c.Role == RoleAdmin
}

func (c Caller) owns(b *models.Booking) bool {
	return b.UserID == c.ID
}

// Patch is a partial booking update. Nil fields are left untouched.
type Patch struct {
	Status *Status
	Notes  *string
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Notes == nil
}

// CanUpdate decides whether caller may apply patch to b.
func CanUpdate(caller Caller, b *models.Booking, patch Patch) error {
	if caller.Privileged() {
		return nil
	}
	if !caller.owns(b) {
		return httperr.Forbidden("not_owner", "booking %s belongs to another user", b.ID)
	}
	if patch.Status != nil {
		return httperr.Forbidden("status_change_forbidden", "only the salon can change a booking status")
	}
	return nil
}

// CanCancel decides whether caller may cancel b at all. Timing rules are
// checked separately by Policy.
func CanCancel(caller Caller, b *models.Booking) error {
	if caller.Privileged() || caller.owns(b) {
		return nil
	}
	return httperr.Forbidden("not_owner", "booking %s belongs to another user", b.ID)
}

// CanCreateFor decides whether caller may create a booking owned by userID.
func CanCreateFor(caller Caller, userID string) error {
	if caller.Privileged() || userID == "" || userID == caller.ID {
		return nil
	}
	return httperr.Forbidden("not_owner", "clients can only book for themselves")
}
