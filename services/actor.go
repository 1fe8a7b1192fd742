package services

import "fmt"

// Capability is a permission checked by privileged operations.
type Capability string

const CapabilityManageCompetitions Capability = "competitions:manage"

// Actor is whoever triggers an operation. Privileged operations receive it
// explicitly instead of comparing identities against a hard-coded list.
type Actor interface {
	ActorID() string
	Can(Capability) bool
}

// Principal is the Actor built from gateway headers.
type Principal struct {
	UserID       string
	Capabilities map[Capability]bool
}

func (p Principal) ActorID() string { return p.UserID }

func (p Principal) Can(c Capability) bool { return p.Capabilities[c] }

// PrincipalFromRoles grants CapabilityManageCompetitions when any of roles
// appears in adminRoles.
func PrincipalFromRoles(userID string, roles, adminRoles []string) Principal {
	p := Principal{UserID: userID, Capabilities: map[Capability]bool{}}
	for _, r := range roles {
		for _, a := range adminRoles {
			if r == a {
				p.Capabilities[CapabilityManageCompetitions] = true
			}
		}
	}
	return p
}

// SystemActor is used by background jobs.
func SystemActor() Principal {
	return Principal{UserID: "system", Capabilities: map[Capability]bool{CapabilityManageCompetitions: true}}
}

func authorize(actor Actor, c Capability) error {
	if actor == nil || !actor.Can(c) {
		return fmt.Errorf("%w: %s", ErrForbidden, c)
	}
	return nil
}
