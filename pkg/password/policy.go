package password

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/kestrelsec/authguard/internal/models"
)

const (
	BcryptCost     = 14 // OWASP 2026 recommendation - stronger than cost 12 (Feb 2026)
	MaxPasswordLen = 128

	// specialChars is the fixed set a password must draw from to satisfy
	// the special-character rule. unicode.IsPunct/IsSymbol accept too much
	// (e.g. currency signs clients cannot reliably type).
	specialChars = "!@#$%^&*()-_=+[]{}|;:'\",.<>?/`~\\"
)

// Violation identifies a single failed policy rule.
type Violation string

const (
	ViolationLength    Violation = "length"
	ViolationUppercase Violation = "uppercase"
	ViolationNumbers   Violation = "numbers"
	ViolationSpecial   Violation = "special"
	ViolationCommon    Violation = "common"
)

// Policy is the immutable rule set the engine validates against. Each rule
// is independently toggleable; MinLength is always enforced.
type Policy struct {
	MinLength        int
	RequireUppercase bool
	RequireNumbers   bool
	RequireSpecial   bool
}

// DefaultPolicy returns the standard production rule set.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        12,
		RequireUppercase: true,
		RequireNumbers:   true,
		RequireSpecial:   true,
	}
}

// PolicyError holds validation details. Its Error() string is deliberately
// generic - specific requirements are never echoed back to end users.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	return "invalid password"
}

// Unwrap ties policy failures into the shared error taxonomy:
// errors.Is(err, models.ErrPolicyViolation) holds wherever a Check
// result propagates.
func (e *PolicyError) Unwrap() error {
	return models.ErrPolicyViolation
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"qwerty":       true,
	"abc123":       true,
	"password123":  true,
	"password123!": true,
	"123456":       true,
	"admin":        true,
	"letmein":      true,
	"welcome":      true,
	"monkey":       true,
	"dragon":       true,
	"master":       true,
	"123123":       true,
	"passw0rd":     true,
	"shadow":       true,
	"sunshine":     true,
	"princess":     true,
	"starwars":     true,
	"football":     true,
	"trustno1":     true,
}

// Engine validates password composition and grades strength.
type Engine struct {
	policy Policy
}

// NewEngine creates a policy engine for the given rule set.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the rule set the engine enforces.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Validate checks a password against the configured rules and returns every
// violated rule. Validity is determined only by the rules, never by Score.
func (e *Engine) Validate(pw string) []Violation {
	violations := make([]Violation, 0)

	if len(pw) < e.policy.MinLength || len(pw) > MaxPasswordLen {
		violations = append(violations, ViolationLength)
	}

	hasUpper := false
	hasDigit := false
	hasSpecial := false
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if e.policy.RequireUppercase && !hasUpper {
		violations = append(violations, ViolationUppercase)
	}
	if e.policy.RequireNumbers && !hasDigit {
		violations = append(violations, ViolationNumbers)
	}
	if e.policy.RequireSpecial && !hasSpecial {
		violations = append(violations, ViolationSpecial)
	}

	if commonPasswords[strings.ToLower(pw)] {
		violations = append(violations, ViolationCommon)
	}

	return violations
}

// Check is a convenience wrapper returning a PolicyError when any rule fails.
func (e *Engine) Check(pw string) error {
	if violations := e.Validate(pw); len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}

// Strength is an informational grade, independent of policy validity.
type Strength struct {
	Value int    // 0-100
	Label string // "weak", "medium" or "strong"
}

// Score grades a password additively: length tiers, then one bonus per
// character class, capped at 100.
func (e *Engine) Score(pw string) Strength {
	score := 0

	if len(pw) >= 8 {
		score += 20
	}
	if len(pw) >= 12 {
		score += 20
	}
	if len(pw) >= 16 {
		score += 10
	}

	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSpecial := false
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if hasLower {
		score += 10
	}
	if hasUpper {
		score += 10
	}
	if hasDigit {
		score += 10
	}
	if hasSpecial {
		score += 20
	}

	if score > 100 {
		score = 100
	}

	label := "strong"
	switch {
	case score < 40:
		label = "weak"
	case score < 70:
		label = "medium"
	}

	return Strength{Value: score, Label: label}
}

// Hash wraps bcrypt generation for stored credentials.
func Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Compare checks a plaintext password against its stored bcrypt hash.
func Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
