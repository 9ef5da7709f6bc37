package domain

// Identity is the authentication context a cart belongs to: Guest when no
// user is signed in, Authenticated otherwise.
type Identity struct {
	UserID string
}

func Guest() Identity { return Identity{} }

func Authenticated(userID string) Identity { return Identity{UserID: userID} }

func (i Identity) IsGuest() bool { return i.UserID == "" }

// Transition classifies an identity change; anything but TransitionNone
// drives the merge resolver.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionLogin
	TransitionLogout
	TransitionSwitch
)

func (i Identity) TransitionTo(next Identity) Transition {
	switch {
	case i == next:
		return TransitionNone
	case i.IsGuest():
		return TransitionLogin
	case next.IsGuest():
		return TransitionLogout
	default:
		return TransitionSwitch
	}
}

func (t Transition) String() string {
	switch t {
	case TransitionLogin:
		return "login"
	case TransitionLogout:
		return "logout"
	case TransitionSwitch:
		return "switch"
	default:
		return "none"
	}
}
