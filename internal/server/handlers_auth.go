package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/auth"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

type registerRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		invalidRequest(c, "Request body must be JSON")
		return
	}

	account, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Name:     request.Name,
		Email:    request.Email,
		Password: request.Password,
	})
	var registrationErr *users.RegistrationError
	switch {
	case err == nil:
	case errors.As(err, &registrationErr):
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_registration", Message: "Validation failed", Fields: registrationErr.Fields})
		return
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, errorPayload{
			Error:   "email_taken",
			Message: "Email already registered",
			Fields:  map[string]string{"email": "Email already registered"},
		})
		return
	default:
		h.logger.Error("failed to register account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "registration_failed", Message: "Internal server error"})
		return
	}

	h.respondWithSession(c, http.StatusCreated, account)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		invalidRequest(c, "Request body must be JSON")
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		h.logger.Info("login rejected", zap.String("email", request.Email))
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "invalid_credentials", Message: "Invalid email or password"})
		return
	}
	if err != nil {
		h.logger.Error("failed to authenticate account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "login_failed", Message: "Internal server error"})
		return
	}

	h.respondWithSession(c, http.StatusOK, account)
}

func (h *httpHandler) respondWithSession(c *gin.Context, status int, account users.Account) {
	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), auth.Principal{
		UserID: account.ID,
		Email:  account.Email,
		Name:   account.Name,
		Role:   account.Role,
	})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "token_issue_failed", Message: "Internal server error"})
		return
	}

	c.JSON(status, users.SessionResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   tokenTypeBearer,
		User:        account.Profile(),
	})
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Message: "Unauthorized"})
		return
	}

	account, err := h.users.Get(c.Request.Context(), claims.UserID)
	if errors.Is(err, users.ErrAccountNotFound) {
		h.logger.Warn("token refers to a missing account", zap.String("user_id", claims.UserID))
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Message: "Account no longer exists"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "profile_failed", Message: "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, account.Profile())
}
