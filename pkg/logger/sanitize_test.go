package logger

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "us***@example.com"},
		{"jo@example.com", "j***@example.com"},
		{"longer.name@corp.example.org", "lo***@corp.example.org"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"user@", "[invalid-email]"},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551231234", "+1***1234"},
		{"+4915770000001", "+4***0001"},
		{"12345", "***"},
		{"", "***"},
	}

	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskDestination(t *testing.T) {
	if got := MaskDestination("user@example.com"); got != "us***@example.com" {
		t.Errorf("MaskDestination(email) = %q", got)
	}
	if got := MaskDestination("+15551231234"); got != "+1***1234" {
		t.Errorf("MaskDestination(phone) = %q", got)
	}
}
