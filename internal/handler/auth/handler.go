package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/dispatch-api/internal/handler"
	"github.com/jwalitptl/dispatch-api/internal/middleware"
	"github.com/jwalitptl/dispatch-api/internal/model"
)

// Service is the identity surface the handler drives.
type Service interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.AuthSession, error)
	RegisterOperator(ctx context.Context, req model.RegisterOperatorRequest) (*model.AuthSession, error)
	Login(ctx context.Context, email, password string) (*model.AuthSession, error)
	EndSession(ctx context.Context, token string) error
}

type Handler struct {
	svc  Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/register/operator", h.RegisterOperator)
		auth.POST("/login", h.Login)
		// logout needs a signed token, not a live session
		auth.POST("/logout", h.Logout)

		session := auth.Group("", h.auth.Authenticate())
		session.GET("/me", h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	sess, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(sess))
}

func (h *Handler) RegisterOperator(c *gin.Context) {
	var req model.RegisterOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	sess, err := h.svc.RegisterOperator(c.Request.Context(), req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(sess))
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sess))
}

func (h *Handler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing or invalid authorization header"))
		return
	}
	if err := h.svc.EndSession(c.Request.Context(), token); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("logged out successfully"))
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(middleware.CurrentSession(c)))
}
