package auth

// EventKind names an authentication state change emitted by the auth backend.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event pairs a kind with the session current after the change.
// Session is nil for sign-out and for backends reporting no session.
type Event struct {
	Kind    EventKind
	Session *Session
}
