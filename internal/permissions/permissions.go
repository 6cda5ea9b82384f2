// Package permissions maps account roles to the capabilities they grant.
package permissions

import (
	"sort"

	"github.com/qwmc/qwmc-web/internal/models"
)

// Capability names one guarded action.
type Capability string

// Capability constants.
const (
	StaffPanel         Capability = "staff.panel"
	TicketsViewAll     Capability = "tickets.view_all"
	TicketsManage      Capability = "tickets.manage"
	UsersView          Capability = "users.view"
	UsersModerate      Capability = "users.moderate"
	UsersEdit          Capability = "users.edit"
	PunishmentsManage  Capability = "punishments.manage"
	NewsManage         Capability = "news.manage"
	SettingsManage     Capability = "settings.manage"
	AuditView          Capability = "audit.view"
	ApplicationsReview Capability = "applications.review"
)

var helperCapabilities = []Capability{
	StaffPanel,
	TicketsViewAll,
	UsersView,
}

var moderatorCapabilities = append(append([]Capability{}, helperCapabilities...),
	TicketsManage,
	UsersModerate,
	PunishmentsManage,
	AuditView,
	ApplicationsReview,
)

// roleCapabilities is the single source of truth for what each role may do.
var roleCapabilities = map[models.Role]map[Capability]struct{}{
	models.RoleUser:      {},
	models.RoleBuilder:   {},
	models.RoleHelper:    toSet(helperCapabilities),
	models.RoleModerator: toSet(moderatorCapabilities),
	models.RoleAdmin:     toSet(All()),
}

// All returns every known capability in sorted order.
func All() []Capability {
	out := []Capability{
		StaffPanel,
		TicketsViewAll,
		TicketsManage,
		UsersView,
		UsersModerate,
		UsersEdit,
		PunishmentsManage,
		NewsManage,
		SettingsManage,
		AuditView,
		ApplicationsReview,
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether role grants capability. Unknown roles grant nothing.
func Has(role models.Role, capability Capability) bool {
	set, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

// For returns the sorted capabilities granted to role.
func For(role models.Role) []Capability {
	set := roleCapabilities[role]
	out := make([]Capability, 0, len(set))
	for capability := range set {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserHas reports whether the user's effective role grants capability.
func UserHas(user *models.User, capability Capability) bool {
	if user == nil {
		return false
	}
	return Has(user.EffectiveRole(), capability)
}

func toSet(capabilities []Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(capabilities))
	for _, capability := range capabilities {
		set[capability] = struct{}{}
	}
	return set
}
