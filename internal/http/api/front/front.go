package front

import (
	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/applications"
	"github.com/qwmc/qwmc-web/internal/http/api/front/handlers"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/news"
	"github.com/qwmc/qwmc-web/internal/ratelimit"
	"github.com/qwmc/qwmc-web/internal/session"
	"github.com/qwmc/qwmc-web/internal/tickets"
)

// Services bundles what the member-facing API calls into.
type Services struct {
	Guard        middleware.UserResolver // Resolves the session user.
	Users        *account.Store          // Accounts and two-factor.
	Sessions     *session.Manager        // Cookie issuer.
	Limiter      *ratelimit.Manager      // Login throttling.
	Moderation   *moderation.Service     // Presence changes.
	Tickets      *tickets.Service        // Support tickets.
	News         *news.Service           // Published announcements.
	Applications *applications.Service   // Applications and ban appeals.
	Metrics      *metrics.Metrics        // Optional counters.
}

// RegisterFrontRoutes registers the public and member API under /api.
func RegisterFrontRoutes(r *gin.Engine, svc Services) {
	if r == nil {
		return
	}

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(svc.Users, svc.Sessions, svc.Limiter, svc.Metrics)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout)

	newsHandler := handlers.NewNewsFrontHandler(svc.News)
	api.GET("/news", newsHandler.List)

	applicationHandler := handlers.NewApplicationFrontHandler(svc.Applications)
	api.GET("/applications/forms", applicationHandler.Forms)

	authed := api.Group("")
	authed.Use(middleware.RequireSession(svc.Guard))

	authed.GET("/auth/me", authHandler.Me)

	accountHandler := handlers.NewAccountHandler(svc.Users, svc.Moderation)
	authed.PUT("/account/presence", accountHandler.Presence)
	authed.POST("/account/totp/prepare", accountHandler.PrepareTOTP)
	authed.POST("/account/totp/confirm", accountHandler.ConfirmTOTP)
	authed.POST("/account/totp/disable", accountHandler.DisableTOTP)

	ticketHandler := handlers.NewTicketFrontHandler(svc.Tickets, svc.Metrics)
	authed.POST("/tickets", ticketHandler.Create)
	authed.GET("/tickets", ticketHandler.List)
	authed.GET("/tickets/:id", ticketHandler.Get)
	authed.POST("/tickets/:id/messages", ticketHandler.AppendMessage)

	authed.POST("/applications/:type", applicationHandler.Submit)
	authed.GET("/applications", applicationHandler.List)
	authed.GET("/applications/:id", applicationHandler.Get)
}
