package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/http/middleware"
	"github.com/razorphish/core-api-sub000/internal/service"
)

// AccountHandler serves the signed-in account's profile endpoints.
type AccountHandler struct {
	Accounts *service.AccountService
	Logger   *zap.Logger
}

// NewAccountHandler creates the handler set.
func NewAccountHandler(accounts *service.AccountService, logger *zap.Logger) *AccountHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AccountHandler{Accounts: accounts, Logger: logger}
}

// Me returns the profile of the bearer's account.
func (h *AccountHandler) Me(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}
	profile, err := h.Accounts.Profile(c.Request.Context(), accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ChangePassword replaces the bearer's password after verifying the current one.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	accountID, ok := h.accountID(c)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" form:"current_password"`
		NewPassword     string `json:"newPassword" form:"new_password"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid password change request."})
		return
	}
	if err := h.Accounts.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}

func (h *AccountHandler) accountID(c *gin.Context) (string, bool) {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return "", false
	}
	if !subject.HasUser() {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient_scope", "error_description": "Token is not bound to an account."})
		return "", false
	}
	return subject.UserID, true
}

func (h *AccountHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Account not found."})
	case errors.Is(err, service.ErrPasswordMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid_grant", "error_description": "Current password is incorrect."})
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid_grant", "error_description": "Account temporarily locked. Try again later."})
	case errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "New password is required."})
	default:
		h.Logger.Error("account request failed", zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
