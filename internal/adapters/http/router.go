package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor/internal/adapters/identity"
	"github.com/parlorchat/parlor/internal/adapters/ws"
	"github.com/parlorchat/parlor/internal/app"
	"github.com/parlorchat/parlor/internal/config"
)

const sessionKeyUserID = "uid"

// Deps bundles what the router wires together.
type Deps struct {
	Store     *identity.Store
	Registry  *app.Registry
	Session   *app.Session
	Forwarder *app.Forwarder
}

// RequireAuth admits only requests whose session carries a principal id.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		uid, ok := sess.Get(sessionKeyUserID).(int64)
		if !ok || uid == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Set("principal_id", uid)
		c.Next()
	}
}

// RequireRelayKey guards the internal relay endpoints the chat backend
// calls; browsers never hit these.
func RequireRelayKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || c.GetHeader("X-Relay-Key") != key {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ParlorSession", store))

	auth := NewAuthHandlers(deps.Store, deps.Session)
	presence := NewPresenceHandlers(deps.Registry)
	relay := NewRelayHandlers(deps.Forwarder)
	wsCtl := ws.NewController(deps.Session, cfg)

	api := r.Group("/api")
	api.POST("/register", auth.Register)
	api.POST("/login", auth.Login)
	api.POST("/logout", auth.Logout)

	authed := api.Group("")
	authed.Use(RequireAuth())
	authed.GET("/profile", auth.Profile)
	authed.PATCH("/profile", auth.UpdateProfile)
	authed.GET("/presence", presence.Online)
	authed.GET("/chats/:id/presence", presence.InRoom)
	authed.GET("/ws", func(c *gin.Context) {
		wsCtl.Handle(ctx, c)
	})

	internal := api.Group("/relay")
	internal.Use(RequireRelayKey(cfg.RelayKey))
	internal.POST("/messages", relay.Message)
	internal.POST("/chats/created", relay.ChatCreated)
	internal.POST("/chats/deleted", relay.ChatDeleted)
	internal.POST("/friend-requests", relay.FriendRequest)
	internal.POST("/friend-requests/accepted", relay.FriendRequestAccepted)

	return r
}
