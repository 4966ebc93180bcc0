package auth

import "testing"

func TestAuthorize(t *testing.T) {
	editor := Identity{UserID: "u1", Capabilities: []Capability{CapabilityCreate, CapabilityRead, CapabilityUpdate}}
	cases := []struct {
		name     string
		identity Identity
		required Capability
		want     Decision
	}{
		{"present", editor, CapabilityUpdate, Allow},
		{"absent", editor, CapabilityDelete, Deny},
		{"empty set", Identity{UserID: "u2", Capabilities: []Capability{}}, CapabilityRead, Deny},
		{"nil set", Identity{UserID: "u3"}, CapabilityRead, Deny},
		{"empty requirement", editor, "", Deny},
		{"extension", Identity{Capabilities: []Capability{"publish"}}, "publish", Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.identity, tc.required); got != tc.want {
				t.Fatalf("Authorize(%v, %q)=%s, want %s", tc.identity.Capabilities, tc.required, got, tc.want)
			}
		})
	}
}

func TestDecisionString(t *testing.T) {
	if Allow.String() != "allow" || Deny.String() != "deny" {
		t.Fatalf("unexpected decision strings %q %q", Allow, Deny)
	}
}

func TestUsedTokenSetRedeem(t *testing.T) {
	set := NewUsedTokenSet()
	if !set.Redeem("a") {
		t.Fatal("first redeem should insert")
	}
	if set.Redeem("a") {
		t.Fatal("second redeem should report already used")
	}
	if !set.Contains("a") || set.Contains("b") || set.Len() != 1 {
		t.Fatalf("unexpected set state, len=%d", set.Len())
	}
}
