package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/kestrelsec/authguard/internal/models"
)

func TestValidate(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	tests := []struct {
		name       string
		password   string
		violations []Violation
	}{
		{
			name:       "valid strong password",
			password:   "Str0ng!Passw0rd",
			violations: nil,
		},
		{
			name:       "all lowercase short word",
			password:   "password",
			violations: []Violation{ViolationLength, ViolationUppercase, ViolationNumbers, ViolationSpecial, ViolationCommon},
		},
		{
			name:       "too short",
			password:   "Pass@1",
			violations: []Violation{ViolationLength},
		},
		{
			name:       "missing uppercase",
			password:   "securepass@123",
			violations: []Violation{ViolationUppercase},
		},
		{
			name:       "missing digit",
			password:   "SecurePass@xyz",
			violations: []Violation{ViolationNumbers},
		},
		{
			name:       "missing special character",
			password:   "SecurePass12345",
			violations: []Violation{ViolationSpecial},
		},
		{
			name:       "too long",
			password:   "Aa1@" + strings.Repeat("x", 130),
			violations: []Violation{ViolationLength},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Validate(tt.password)
			if len(got) != len(tt.violations) {
				t.Fatalf("Validate(%q) = %v, want %v", tt.password, got, tt.violations)
			}
			for i, v := range tt.violations {
				if got[i] != v {
					t.Errorf("violation[%d] = %q, want %q", i, got[i], v)
				}
			}
		})
	}
}

func TestValidate_TogglesIndependent(t *testing.T) {
	engine := NewEngine(Policy{MinLength: 8})

	if got := engine.Validate("lowerOnlyPassword"); len(got) != 0 {
		t.Errorf("with all rules off, Validate = %v, want none", got)
	}
}

func TestCheck_GenericError(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	err := engine.Check("short")
	if err == nil {
		t.Fatal("Check(short) = nil, want error")
	}
	// Requirement details must never leak into the user-facing message.
	if err.Error() != "invalid password" {
		t.Errorf("error message = %q, want generic \"invalid password\"", err.Error())
	}
}

func TestCheck_UnwrapsToPolicyViolation(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	err := engine.Check("password")
	if !errors.Is(err, models.ErrPolicyViolation) {
		t.Errorf("Check failure should satisfy errors.Is(err, models.ErrPolicyViolation), got %v", err)
	}

	var policyErr *PolicyError
	if !errors.As(err, &policyErr) || len(policyErr.Violations) == 0 {
		t.Errorf("Check failure should expose its violations, got %v", err)
	}

	if err := engine.Check("Str0ng!Passw0rd"); err != nil {
		t.Errorf("Check(valid) = %v, want nil", err)
	}
}

func TestScore(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	tests := []struct {
		password string
		value    int
		label    string
	}{
		{"", 0, "weak"},
		{"abc", 10, "weak"},
		{"password", 30, "weak"},             // len>=8, lowercase
		{"Password1", 50, "medium"},          // len>=8, lower, upper, digit
		{"Str0ng!Passw0rd", 90, "strong"},    // len>=12, all classes
		{"Str0ng!Passw0rd!!", 100, "strong"}, // len>=16, all classes, capped
	}

	for _, tt := range tests {
		got := engine.Score(tt.password)
		if got.Value != tt.value {
			t.Errorf("Score(%q).Value = %d, want %d", tt.password, got.Value, tt.value)
		}
		if got.Label != tt.label {
			t.Errorf("Score(%q).Label = %q, want %q", tt.password, got.Label, tt.label)
		}
	}
}

func TestScore_IndependentOfValidity(t *testing.T) {
	// A password can score "strong" yet still fail policy, and vice versa.
	engine := NewEngine(Policy{MinLength: 30, RequireUppercase: true})

	pw := "Str0ng!Passw0rd!!"
	if got := engine.Score(pw); got.Label != "strong" {
		t.Fatalf("Score(%q).Label = %q, want strong", pw, got.Label)
	}
	if got := engine.Validate(pw); len(got) == 0 {
		t.Fatal("Validate should reject a 17-char password under a 30-char policy")
	}
}

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := Compare(hash, "Str0ng!Passw0rd"); err != nil {
		t.Errorf("Compare() with correct password = %v, want nil", err)
	}
	if err := Compare(hash, "WrongPassword1!"); err == nil {
		t.Error("Compare() with wrong password = nil, want error")
	}
}

func TestHash_EmptyRejected(t *testing.T) {
	if _, err := Hash(""); err == nil {
		t.Error("Hash(\"\") = nil, want error")
	}
}
