package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"Bob@Example.COM", "bob@example.com"},
		{"  alice@example.com ", "alice@example.com"},
		{"plain@example.com", "plain@example.com"},
	}
	for _, tc := range testCases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate_Defaults(t *testing.T) {
	u := &User{Email: "Bob@Example.com"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.NormalizedEmail != "bob@example.com" {
		t.Errorf("NormalizedEmail = %q", u.NormalizedEmail)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want %q", u.Status, UserStatusActive)
	}

	if err := (&User{}).Validate(); err == nil {
		t.Error("empty email should fail validation")
	}
}

// The status strings are stored as-is and the schema default must produce a
// value this code matches on; pin them so neither drifts.
func TestUserStatusValues(t *testing.T) {
	if UserStatusActive != "active" || UserStatusDisabled != "disabled" {
		t.Errorf("status values = %q, %q", UserStatusActive, UserStatusDisabled)
	}
}
