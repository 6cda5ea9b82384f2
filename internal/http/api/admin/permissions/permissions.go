package permissions

import (
	"strings"

	"github.com/qwmc/qwmc-web/internal/permissions"
)

// AdminPrefix is the mount point of the staff API.
const AdminPrefix = "/api/admin"

// Definition describes a staff route and the capability it requires.
type Definition struct {
	Key        string                 `json:"key"`
	Method     string                 `json:"method"`
	Path       string                 `json:"path"`
	Label      string                 `json:"label"`
	Module     string                 `json:"module"`
	Capability permissions.Capability `json:"capability"`
}

// Key builds a definition key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Lookup returns the capability registered for a method and route template.
func Lookup(method, path string) (permissions.Capability, bool) {
	def, ok := definitionMap[Key(method, path)]
	if !ok {
		return "", false
	}
	return def.Capability, true
}

// Definitions returns a copy of all route definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns a copy of the definition map.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, value := range definitionMap {
		out[key] = value
	}
	return out
}

// Allowed returns the definitions a role-derived capability set can reach.
func Allowed(capabilities []permissions.Capability) []Definition {
	granted := make(map[permissions.Capability]struct{}, len(capabilities))
	for _, capability := range capabilities {
		granted[capability] = struct{}{}
	}
	out := make([]Definition, 0, len(definitions))
	for _, def := range definitions {
		if _, ok := granted[def.Capability]; ok {
			out = append(out, def)
		}
	}
	return out
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string, capability permissions.Capability) Definition {
	upperMethod := strings.ToUpper(method)
	fullPath := AdminPrefix + path
	return Definition{
		Key:        Key(upperMethod, fullPath),
		Method:     upperMethod,
		Path:       fullPath,
		Label:      label,
		Module:     module,
		Capability: capability,
	}
}

// definitions is the ordered list of staff routes.
var definitions = []Definition{
	newDefinition("GET", "/users", "List Users", "Users", permissions.UsersView),
	newDefinition("GET", "/users/:id", "Get User", "Users", permissions.UsersView),
	newDefinition("PUT", "/users/:id", "Update User", "Users", permissions.UsersEdit),
	newDefinition("PUT", "/users/:id/status", "Update User Status", "Users", permissions.UsersModerate),

	newDefinition("GET", "/tickets", "List Tickets", "Tickets", permissions.TicketsViewAll),
	newDefinition("GET", "/tickets/:id", "Get Ticket", "Tickets", permissions.TicketsViewAll),
	newDefinition("PUT", "/tickets/:id/status", "Update Ticket Status", "Tickets", permissions.TicketsManage),
	newDefinition("PUT", "/tickets/:id/assignee", "Assign Ticket", "Tickets", permissions.TicketsManage),

	newDefinition("GET", "/punishments", "List Punishments", "Punishments", permissions.PunishmentsManage),
	newDefinition("POST", "/punishments", "Issue Punishment", "Punishments", permissions.PunishmentsManage),
	newDefinition("POST", "/punishments/:id/revoke", "Revoke Punishment", "Punishments", permissions.PunishmentsManage),

	newDefinition("GET", "/applications", "List Applications", "Applications", permissions.ApplicationsReview),
	newDefinition("GET", "/applications/:id", "Get Application", "Applications", permissions.ApplicationsReview),
	newDefinition("PUT", "/applications/:id/review", "Review Application", "Applications", permissions.ApplicationsReview),

	newDefinition("GET", "/news", "List News", "News", permissions.NewsManage),
	newDefinition("POST", "/news", "Create News", "News", permissions.NewsManage),
	newDefinition("PUT", "/news/:id", "Update News", "News", permissions.NewsManage),
	newDefinition("DELETE", "/news/:id", "Delete News", "News", permissions.NewsManage),

	newDefinition("POST", "/settings", "Create Setting", "Settings", permissions.SettingsManage),
	newDefinition("GET", "/settings", "List Settings", "Settings", permissions.SettingsManage),
	newDefinition("GET", "/settings/:key", "Get Setting", "Settings", permissions.SettingsManage),
	newDefinition("PUT", "/settings/:key", "Update Setting", "Settings", permissions.SettingsManage),
	newDefinition("DELETE", "/settings/:key", "Delete Setting", "Settings", permissions.SettingsManage),

	newDefinition("GET", "/audit-logs", "List Audit Logs", "Audit", permissions.AuditView),
	newDefinition("GET", "/permissions", "List Permission Definitions", "Staff", permissions.StaffPanel),
}

// definitionMap provides fast lookup for route definitions.
var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
