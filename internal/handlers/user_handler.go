package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

// UserHandler serves account signup, token login and API key management.
type UserHandler struct {
	accounts user.AccountService
	logger   *Logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(accounts user.AccountService, logger *Logger.Logger) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// RegisterRoutes mounts the account routes under router.
func (h *UserHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/accounts", h.SignUp)
	router.POST("/auth/token", h.Login)

	keys := router.Group("/keys", AuthMiddleware(h.accounts, h.logger))
	keys.POST("", h.IssueKey)
	keys.DELETE("/:key", h.RevokeKey)
}

// SignUp creates an account usable with ACCOUNT auth.
// @Summary Create an account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body user.SignUpRequest true "Account data"
// @Success 201 {object} SignUpResponse
// @Failure 400 {object} ErrorResponse "Invalid request data"
// @Failure 409 {object} ErrorResponse "Login already exists"
// @Router /accounts [post]
func (h *UserHandler) SignUp(c *gin.Context) {
	var req user.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	acct, err := h.accounts.SignUp(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrLoginTaken):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "Login already exists"})
		default:
			h.logger.Errorf("signup error: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, SignUpResponse{
		Message: "Account created",
		Account: *acct,
	})
}

// Login exchanges account credentials for a gateway token.
// @Summary Issue a gateway token
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body user.LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 501 {object} ErrorResponse "Token login is disabled"
// @Router /auth/token [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	tok, err := h.accounts.Login(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})
		case errors.Is(err, user.ErrNoTokenSecret):
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Token login is disabled"})
		default:
			h.logger.Errorf("login error: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   *tok,
	})
}

// IssueKey mints an API key for the authenticated user.
// @Summary Issue an API key
// @Tags Keys
// @Produce json
// @Security BearerAuth
// @Success 201 {object} KeyResponse
// @Failure 401 {object} ErrorResponse "User not authenticated"
// @Router /keys [post]
func (h *UserHandler) IssueKey(c *gin.Context) {
	userID, ok := ExtractUserID(c)
	if !ok {
		return
	}

	key, err := h.accounts.IssueKey(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNoKeyStore):
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "API key store is disabled"})
		default:
			h.logger.Errorf("issue key error: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, KeyResponse{Key: key, UserID: userID})
}

// RevokeKey deletes one of the authenticated user's API keys.
func (h *UserHandler) RevokeKey(c *gin.Context) {
	userID, ok := ExtractUserID(c)
	if !ok {
		return
	}

	err := h.accounts.RevokeKey(c.Request.Context(), userID, c.Param("key"))
	if err != nil {
		switch {
		case errors.Is(err, user.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Key not found"})
		case errors.Is(err, user.ErrNoKeyStore):
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "API key store is disabled"})
		default:
			h.logger.Errorf("revoke key error: %v", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Key revoked"})
}
