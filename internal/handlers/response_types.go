package handlers

import (
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/internal/events"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SignUpResponse struct {
	Message string               `json:"message"`
	Account user.AccountResponse `json:"account"`
}

type LoginResponse struct {
	Message string             `json:"message"`
	Token   user.TokenResponse `json:"token"`
}

// KeyResponse returns a freshly issued API key. The key is shown once.
type KeyResponse struct {
	Key    string `json:"key"`
	UserID string `json:"user_id"`
}

type SessionsResponse struct {
	Sessions []map[string]any `json:"sessions"`
}

type SessionEventsResponse struct {
	SessionID string         `json:"session_id"`
	Events    []events.Event `json:"events"`
}
