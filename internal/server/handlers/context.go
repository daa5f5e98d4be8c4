// Package handlers contains the HTTP handlers of the stockline server:
// login, health and sync-service introspection.
package handlers

import "context"

// contextKey is the type for request context keys set by auth middleware.
type contextKey string

const (
	// UserIDKey holds the authenticated user id.
	UserIDKey contextKey = "user_id"
	// UsernameKey holds the authenticated username.
	UsernameKey contextKey = "username"
)

// GetUserID extracts the user id from a request context.
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUsername extracts the username from a request context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
