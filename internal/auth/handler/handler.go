package handler

import (
	"context"
	"errors"
	"net/http"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/auth/credentials"

	"github.com/gin-gonic/gin"
)

// AuthService is the orchestrator surface the HTTP layer consumes.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	GoogleCallback(ctx context.Context, code string) (*auth.Result, error)
}

type Handler struct {
	svc AuthService
}

func NewHandler(svc AuthService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/google", h.GoogleCallback)
}

type authResponse struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func toResponse(res *auth.Result) authResponse {
	return authResponse{
		Token:    res.Token,
		Username: res.Username,
		Email:    res.Email,
		Roles:    res.Roles,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		var verr *credentials.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": auth.ErrRegistration.Error()})
		return
	}

	c.JSON(http.StatusCreated, toResponse(res))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	c.JSON(http.StatusOK, toResponse(res))
}

type googleCallbackRequest struct {
	Code string `json:"code"`
}

func (h *Handler) GoogleCallback(c *gin.Context) {
	var req googleCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.svc.GoogleCallback(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	c.JSON(http.StatusOK, toResponse(res))
}
