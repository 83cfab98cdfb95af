package models

import (
	"time"

	"github.com/kestrelsec/authguard/pkg/crypt"
)

// Credential is the stored secret material for a principal, looked up
// through the external credential store. The TOTP secret is held only in
// encrypted form; decryption happens inside the authenticator.
type Credential struct {
	PrincipalID string
	Identifier  string
	SecretHash  string
	MFAEnabled  bool

	TOTPSecret     *crypt.EncryptedPayload
	TOTPLastUsedAt *time.Time
}
