package session

import (
	"context"
	"errors"
	"strings"

	"intake-relay/models"
)

// Keys under which the session id and role are stored.
const (
	KeySessionID = "intake:sessionId"
	KeyRole      = "intake:role"
)

var (
	ErrNoSession      = errors.New("no session stored")
	ErrEmptySessionID = errors.New("please enter a session id")
	ErrInvalidRole    = errors.New("role must be patient or staff")
)

// Store persists the client's session id and role between runs.
type Store interface {
	// Load returns ErrNoSession if nothing has been saved.
	Load(ctx context.Context) (models.Session, error)
	Save(ctx context.Context, s models.Session) error
	Clear(ctx context.Context) error
}

// Login trims the session id, validates it and the role, and saves both.
func Login(ctx context.Context, st Store, sessionID string, role models.Role) (models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.Session{}, ErrEmptySessionID
	}
	if !role.Valid() {
		return models.Session{}, ErrInvalidRole
	}
	s := models.Session{SessionID: sessionID, Role: role}
	if err := st.Save(ctx, s); err != nil {
		return models.Session{}, err
	}
	return s, nil
}
