package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/applications"
	handlers "github.com/qwmc/qwmc-web/internal/http/api/admin/handlers"
	adminpermissions "github.com/qwmc/qwmc-web/internal/http/api/admin/permissions"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/news"
	"github.com/qwmc/qwmc-web/internal/permissions"
	"github.com/qwmc/qwmc-web/internal/punishments"
	"github.com/qwmc/qwmc-web/internal/tickets"
	"gorm.io/gorm"
)

// Services bundles the domain services the staff API calls into.
type Services struct {
	Guard        middleware.UserResolver // Resolves the session user.
	Users        *account.Store          // Account lookups.
	Moderation   *moderation.Service     // Status changes, edits and audit reads.
	Tickets      *tickets.Service        // Ticket reads.
	News         *news.Service           // Announcements.
	Punishments  *punishments.Service    // Bans, mutes, kicks and warnings.
	Applications *applications.Service   // Application review queue.
	Metrics      *metrics.Metrics        // Optional counters.
}

// RegisterAdminRoutes registers the health check and the staff API.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, svc Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group(adminpermissions.AdminPrefix)
	authed.Use(middleware.RequireSession(svc.Guard))
	authed.Use(middleware.RequireCapability(permissions.StaffPanel))
	authed.Use(middleware.RequireRouteCapability(adminpermissions.Lookup))

	userHandler := handlers.NewUserHandler(svc.Users, svc.Moderation, svc.Metrics)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)
	authed.PUT("/users/:id/status", userHandler.UpdateStatus)

	ticketHandler := handlers.NewTicketHandler(svc.Tickets, svc.Moderation, svc.Metrics)
	authed.GET("/tickets", ticketHandler.List)
	authed.GET("/tickets/:id", ticketHandler.Get)
	authed.PUT("/tickets/:id/status", ticketHandler.UpdateStatus)
	authed.PUT("/tickets/:id/assignee", ticketHandler.Assign)

	punishmentHandler := handlers.NewPunishmentHandler(svc.Punishments)
	authed.GET("/punishments", punishmentHandler.List)
	authed.POST("/punishments", punishmentHandler.Issue)
	authed.POST("/punishments/:id/revoke", punishmentHandler.Revoke)

	applicationHandler := handlers.NewApplicationHandler(svc.Applications)
	authed.GET("/applications", applicationHandler.List)
	authed.GET("/applications/:id", applicationHandler.Get)
	authed.PUT("/applications/:id/review", applicationHandler.Review)

	newsHandler := handlers.NewNewsHandler(svc.News)
	authed.GET("/news", newsHandler.List)
	authed.POST("/news", newsHandler.Create)
	authed.PUT("/news/:id", newsHandler.Update)
	authed.DELETE("/news/:id", newsHandler.Delete)

	settingHandler := handlers.NewSettingHandler(db)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	auditHandler := handlers.NewAuditHandler(svc.Moderation)
	authed.GET("/audit-logs", auditHandler.List)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}
