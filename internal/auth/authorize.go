package auth

// Decision is the outcome of an authorization check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

// Authorize allows iff required is a member of the identity's capability
// set. An empty set or an empty requirement always denies.
func Authorize(identity Identity, required Capability) Decision {
	if required == "" || len(identity.Capabilities) == 0 {
		return Deny
	}
	return Decision(identity.Can(required))
}
