package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/adapters/identity"
	"github.com/parlorchat/parlor/internal/app"
	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

type AuthHandlers struct {
	store    *identity.Store
	session  *app.Session
	validate *validator.Validate
}

func NewAuthHandlers(store *identity.Store, session *app.Session) *AuthHandlers {
	return &AuthHandlers{store: store, session: session, validate: validator.New()}
}

type credentialsBody struct {
	Name      string  `json:"name" validate:"required"`
	Password  string  `json:"password" validate:"required"`
	AvatarRef *string `json:"avatarRef"`
}

func (h *AuthHandlers) Register(c *gin.Context) {
	var body credentialsBody
	if !h.bind(c, &body) {
		return
	}
	user, err := h.store.Register(body.Name, body.Password, body.AvatarRef)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrNameTaken) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}
	h.setPrincipal(c, user.ID)
	c.JSON(http.StatusCreated, user)
}

func (h *AuthHandlers) Login(c *gin.Context) {
	var body credentialsBody
	if !h.bind(c, &body) {
		return
	}
	user, err := h.store.Authenticate(body.Name, body.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "bad credentials"})
		return
	}
	h.setPrincipal(c, user.ID)
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "http").Msg("clear session")
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandlers) Profile(c *gin.Context) {
	uid := domain.UserID(c.GetInt64("principal_id"))
	user, err := h.store.FindByID(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileBody struct {
	Name      string  `json:"name" validate:"required"`
	AvatarRef *string `json:"avatarRef"`
}

// UpdateProfile persists new identity fields, then pushes them into the
// presence cache so online viewers see the change without a reconnect.
func (h *AuthHandlers) UpdateProfile(c *gin.Context) {
	uid := domain.UserID(c.GetInt64("principal_id"))
	var body profileBody
	if !h.bind(c, &body) {
		return
	}
	user, err := h.store.UpdateProfile(uid, body.Name, body.AvatarRef)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, core.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, identity.ErrNameTaken):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}
	h.session.UpdateProfile(uid, user.Name, user.AvatarRef)
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandlers) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad request body"})
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return false
	}
	return true
}

func (h *AuthHandlers) setPrincipal(c *gin.Context, id domain.UserID) {
	sess := sessions.Default(c)
	sess.Set(sessionKeyUserID, int64(id))
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "http").Msg("save session")
	}
}

type PresenceHandlers struct {
	reg *app.Registry
}

func NewPresenceHandlers(reg *app.Registry) *PresenceHandlers {
	return &PresenceHandlers{reg: reg}
}

func (h *PresenceHandlers) Online(c *gin.Context) {
	c.JSON(http.StatusOK, h.reg.ListOnline())
}

func (h *PresenceHandlers) InRoom(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad chat id"})
		return
	}
	c.JSON(http.StatusOK, h.reg.ListInRoom(domain.RoomID(id)))
}
