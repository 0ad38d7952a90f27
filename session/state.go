package session

// SessionState is the lifecycle position of a session
type SessionState int

const (
	// LoggedOut means no access token is held
	LoggedOut SessionState = iota
	// LoggedInFresh means an access token is held and is before its expiration
	LoggedInFresh
	// LoggedInExpired means an access token is held but its expiration has passed or is unknown
	LoggedInExpired
)

func (s SessionState) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggedInFresh:
		return "logged_in_fresh"
	case LoggedInExpired:
		return "logged_in_expired"
	default:
		return "unknown"
	}
}
