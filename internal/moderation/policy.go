package moderation

import "github.com/qwmc/qwmc-web/internal/models"

// TransitionPolicy decides whether a status change may proceed.
// Returning an error aborts the change before anything is written.
type TransitionPolicy interface {
	AllowUserStatus(actor *models.User, target *models.User, to models.UserStatus) error
	AllowTicketStatus(actor *models.User, target *models.Ticket, to models.TicketStatus) error
}

// PermissivePolicy allows every transition, including to the current value.
type PermissivePolicy struct{}

// AllowUserStatus always allows.
func (PermissivePolicy) AllowUserStatus(*models.User, *models.User, models.UserStatus) error {
	return nil
}

// AllowTicketStatus always allows.
func (PermissivePolicy) AllowTicketStatus(*models.User, *models.Ticket, models.TicketStatus) error {
	return nil
}
