package auth

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/kestrelsec/authguard/pkg/crypt"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	fields, err := crypt.NewFieldService(key)
	if err != nil {
		t.Fatal(err)
	}
	return NewTOTPManager(fields, "authguard-test")
}

func TestEnroll(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("user@example.com")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	if enrollment.EncryptedSecret == nil || len(enrollment.EncryptedSecret.Ciphertext) == 0 {
		t.Error("enrollment returned empty encrypted secret")
	}
	if !strings.HasPrefix(enrollment.QRCodeDataURL, "data:image/png;base64,") {
		t.Errorf("QR code is not a PNG data URL: %.40s", enrollment.QRCodeDataURL)
	}
}

func TestValidate_CorrectCode(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	// Recover the secret the way the production validator does, then
	// compute the current code for it.
	var secret string
	if err := tm.fields.Decrypt(enrollment.EncryptedSecret, &secret); err != nil {
		t.Fatal(err)
	}

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatal(err)
	}

	valid, err := tm.Validate(enrollment.EncryptedSecret, code, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !valid {
		t.Error("Validate() = false for a freshly generated code")
	}
}

func TestValidate_WrongCode(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	valid, err := tm.Validate(enrollment.EncryptedSecret, "000000", nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if valid {
		t.Error("Validate() = true for a bogus code")
	}
}

func TestValidate_ReplayRejected(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	var secret string
	if err := tm.fields.Decrypt(enrollment.EncryptedSecret, &secret); err != nil {
		t.Fatal(err)
	}
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatal(err)
	}

	lastUsed := time.Now().Add(-10 * time.Second)
	if valid, _ := tm.Validate(enrollment.EncryptedSecret, code, &lastUsed); valid {
		t.Error("Validate() accepted a code within the replay window")
	}

	longAgo := time.Now().Add(-5 * time.Minute)
	valid, err := tm.Validate(enrollment.EncryptedSecret, code, &longAgo)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !valid {
		t.Error("Validate() rejected a code outside the replay window")
	}
}

func TestValidate_TamperedSecret(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.Enroll("user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	enrollment.EncryptedSecret.Ciphertext[0] ^= 0x01

	if _, err := tm.Validate(enrollment.EncryptedSecret, "123456", nil); err == nil {
		t.Error("Validate() = nil error with tampered secret, want decryption failure")
	}
}
