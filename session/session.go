/*
Package session models who is making a request.

A Session is an immutable value. State changes are events folded in by
Reduce, which always returns a new Session and never mutates its input:

	Anonymous ──LoggedIn / Registered──► Authenticated ──LoggedOut──► Anonymous

Sessions travel in the request context (WithContext / FromContext). Anyone
interested in session changes subscribes to a Broker instead of reading
shared state.

SEE ALSO:
  - token.go: HS256 tokens that carry a Session between requests
  - broker.go: Fan-out of session changes to subscribers
*/
package session

import (
	"context"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployer Role = "employer"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployer, RoleEmployee:
		return true
	}
	return false
}

// User is the authenticated principal. For employers and employees
// EmployerID scopes what they may see; for employees ID is the employee id.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Role       Role   `json:"role"`
	EmployerID string `json:"employer_id,omitempty"`
}

// Session is a snapshot of authentication state. The zero value is anonymous.
type Session struct {
	user      *User
	token     string
	expiresAt time.Time
	err       string
}

// Anonymous returns the unauthenticated session.
func Anonymous() Session { return Session{} }

func (s Session) Authenticated() bool { return s.user != nil }
func (s Session) Token() string       { return s.token }
func (s Session) ExpiresAt() time.Time { return s.expiresAt }
func (s Session) Err() string         { return s.err }

// User returns a copy of the principal, or false when anonymous.
func (s Session) User() (User, bool) {
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Role returns the principal's role, or "" when anonymous.
func (s Session) Role() Role {
	if s.user == nil {
		return ""
	}
	return s.user.Role
}

// Subject returns the principal id, or "" when anonymous.
func (s Session) Subject() string {
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is a session state transition.
type Event interface {
	sessionEvent()
}

type LoggedIn struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

type Registered struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

type LoggedOut struct{}

// Failed records an authentication failure without changing who is logged in.
type Failed struct {
	Reason string
}

func (LoggedIn) sessionEvent()   {}
func (Registered) sessionEvent() {}
func (LoggedOut) sessionEvent()  {}
func (Failed) sessionEvent()     {}

// Reduce applies ev to s and returns the resulting session.
func Reduce(s Session, ev Event) Session {
	switch e := ev.(type) {
	case LoggedIn:
		u := e.User
		return Session{user: &u, token: e.Token, expiresAt: e.ExpiresAt}
	case Registered:
		u := e.User
		return Session{user: &u, token: e.Token, expiresAt: e.ExpiresAt}
	case LoggedOut:
		return Anonymous()
	case Failed:
		next := s
		next.err = e.Reason
		return next
	default:
		return s
	}
}

// =============================================================================
// CONTEXT
// =============================================================================

type contextKey struct{}

// WithContext returns a copy of ctx carrying s.
func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session, anonymous if none was attached.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(contextKey{}).(Session); ok {
		return s
	}
	return Anonymous()
}
