// Package auth admits or rejects a connecting device before any
// session state is touched.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/utils"
)

// Identity is the admitted identity attached to a connection.
type Identity struct {
	UserID     string
	DeviceID   string
	DeviceName string
}

const (
	credentialPrefix = "wl_"
	credentialMinLen = 8
)

// Authenticator validates a device's claimed identity. Without a
// configured secret this is a coarse shape check on the credential, not
// cryptographic verification; with a secret, credentials must be valid
// HS256 tokens whose subject matches the claimed device id.
type Authenticator struct {
	secret string
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: secret}
}

func (a *Authenticator) Authenticate(msg models.ClientMessage) (Identity, error) {
	const op = "Authenticator.Authenticate"

	if msg.UserID == "" || msg.DeviceID == "" || msg.DeviceName == "" || msg.Credential == "" {
		return Identity{}, utils.E(utils.CodeUnauthorized, op, "user_id, device_id, device_name, and credential are required", nil)
	}

	if a.secret != "" {
		if err := a.verifyToken(msg.Credential, msg.DeviceID); err != nil {
			return Identity{}, utils.E(utils.CodeUnauthorized, op, "invalid device token", err)
		}
	} else if !strings.HasPrefix(msg.Credential, credentialPrefix) || len(msg.Credential) < credentialMinLen {
		return Identity{}, utils.E(utils.CodeUnauthorized, op, "malformed credential", nil)
	}

	return Identity{
		UserID:     msg.UserID,
		DeviceID:   msg.DeviceID,
		DeviceName: msg.DeviceName,
	}, nil
}

func (a *Authenticator) verifyToken(raw, deviceID string) error {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(a.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || tok == nil || !tok.Valid {
		return jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject != deviceID {
		return jwt.ErrTokenInvalidSubject
	}
	return nil
}
