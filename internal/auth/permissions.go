package auth

// DefaultRoles returns the role definitions seeded at bootstrap.
func DefaultRoles() map[RoleName][]Capability {
	return map[RoleName][]Capability{
		RoleAdmin:  {CapabilityCreate, CapabilityRead, CapabilityUpdate, CapabilityDelete},
		RoleEditor: {CapabilityCreate, CapabilityRead, CapabilityUpdate},
		RoleUser:   {CapabilityRead},
	}
}

// BuiltinCapabilities enumerates every capability a role may grant.
var BuiltinCapabilities = []Capability{
	CapabilityCreate,
	CapabilityRead,
	CapabilityUpdate,
	CapabilityDelete,
}

// KnownCapability reports whether c is one of BuiltinCapabilities.
func KnownCapability(c Capability) bool {
	for _, known := range BuiltinCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

func dedupeCapabilities(in []Capability) []Capability {
	if len(in) == 0 {
		return []Capability{}
	}
	seen := make(map[Capability]struct{}, len(in))
	out := make([]Capability, 0, len(in))
	for _, c := range in {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// CapabilityStrings converts capabilities to their wire form.
func CapabilityStrings(in []Capability) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = string(c)
	}
	return out
}

// ParseCapabilities converts wire-form capability names, dropping blanks and duplicates.
func ParseCapabilities(in []string) []Capability {
	out := make([]Capability, 0, len(in))
	for _, s := range in {
		out = append(out, Capability(s))
	}
	return dedupeCapabilities(out)
}
