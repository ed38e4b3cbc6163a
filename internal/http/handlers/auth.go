package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-backend/internal/http/response"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("Username, email and password are required"))
		return
	}
	user, token, err := ah.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, "", gin.H{
		"user":       user,
		"token":      token,
		"expires_in": int(ah.authService.AccessTTL().Seconds()),
	})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("Email and password are required"))
		return
	}
	user, token, err := ah.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "", gin.H{
		"user":       user,
		"token":      token,
		"expires_in": int(ah.authService.AccessTTL().Seconds()),
	})
}

func (ah *AuthHandler) Profile(c *gin.Context) {
	user, err := ah.authService.Profile(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "", gin.H{"user": user})
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if err := ah.authService.Logout(c.Request.Context()); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "Logged out successfully", nil)
}
