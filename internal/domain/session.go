package domain

type AuthState string

const (
	AuthStateAnonymous     AuthState = "anonymous"
	AuthStateLoading       AuthState = "loading"
	AuthStateAuthenticated AuthState = "authenticated"
)

// Session is what the rest of the client knows about authentication.
// Token is only set when State is AuthStateAuthenticated.
type Session struct {
	State AuthState
	Token string
}

func (s Session) IsAuthenticated() bool {
	return s.State == AuthStateAuthenticated && s.Token != ""
}
