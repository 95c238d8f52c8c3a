package auth

import (
	"context"
)

// Actor is the authenticated caller of an operation. It is passed explicitly
// to the scheduling engine instead of being read from ambient state.
type Actor struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// ActorFromContext builds the Actor placed on ctx by the auth middleware.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{
		Subject: UserIDFromContext(ctx),
		Roles:   RolesFromContext(ctx),
	}
}

func (a Actor) Authenticated() bool { return a.Subject != "" }

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.HasRole(RoleAdmin) }
