package transport

import "testing"

func TestOwnerIdentityMatches(t *testing.T) {
	owner := OwnerIdentity{
		PrimaryID: "15551234567@s.whatsapp.net",
		LinkedID:  "98765@lid",
	}

	tests := []struct {
		name     string
		owner    OwnerIdentity
		senderID string
		want     bool
	}{
		{"primary match", owner, "15551234567@s.whatsapp.net", true},
		{"linked match", owner, "98765@lid", true},
		{"other primary", owner, "19998887777@s.whatsapp.net", false},
		{"other linked", owner, "11111@lid", false},
		{"empty sender", owner, "", false},
		{"linked sender never checked against primary", OwnerIdentity{PrimaryID: "98765@lid"}, "98765@lid", false},
		{"no linked id configured", OwnerIdentity{PrimaryID: "15551234567@s.whatsapp.net"}, "98765@lid", false},
		{"no primary id configured", OwnerIdentity{LinkedID: "98765@lid"}, "15551234567@s.whatsapp.net", false},
		{"zero identity", OwnerIdentity{}, "15551234567@s.whatsapp.net", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.owner.Matches(tt.senderID); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.senderID, got, tt.want)
			}
		})
	}
}

func TestOwnerIdentityIsZero(t *testing.T) {
	if !(OwnerIdentity{}).IsZero() {
		t.Error("empty identity should be zero")
	}
	if (OwnerIdentity{PrimaryID: "a"}).IsZero() {
		t.Error("identity with primary id should not be zero")
	}
	if (OwnerIdentity{LinkedID: "a@lid"}).IsZero() {
		t.Error("identity with linked id should not be zero")
	}
}
