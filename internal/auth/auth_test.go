package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/utils"
)

func connectMsg(userID, deviceID, credential string) models.ClientMessage {
	return models.ClientMessage{
		Type:       models.MsgConnect,
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: "Pendant",
		Credential: credential,
	}
}

func TestAuthenticateShapeCheck(t *testing.T) {
	a := auth.New("")

	tests := []struct {
		name string
		msg  models.ClientMessage
		ok   bool
	}{
		{"valid", connectMsg("u1", "d1", "wl_device_secret"), true},
		{"missing user", connectMsg("", "d1", "wl_device_secret"), false},
		{"missing device", connectMsg("u1", "", "wl_device_secret"), false},
		{"missing credential", connectMsg("u1", "d1", ""), false},
		{"wrong prefix", connectMsg("u1", "d1", "xx_device_secret"), false},
		{"too short", connectMsg("u1", "d1", "wl_a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, err := a.Authenticate(tt.msg)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "u1", ident.UserID)
				assert.Equal(t, "d1", ident.DeviceID)
				return
			}
			require.Error(t, err)
			assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
		})
	}
}

func TestAuthenticateMissingDeviceName(t *testing.T) {
	a := auth.New("")
	msg := connectMsg("u1", "d1", "wl_device_secret")
	msg.DeviceName = ""

	_, err := a.Authenticate(msg)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticateWithTokenSecret(t *testing.T) {
	const secret = "test-secret"
	a := auth.New(secret)

	t.Run("valid token", func(t *testing.T) {
		ident, err := a.Authenticate(connectMsg("u1", "d1", signToken(t, secret, "d1")))
		require.NoError(t, err)
		assert.Equal(t, "d1", ident.DeviceID)
	})

	t.Run("subject mismatch", func(t *testing.T) {
		_, err := a.Authenticate(connectMsg("u1", "d1", signToken(t, secret, "other-device")))
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := a.Authenticate(connectMsg("u1", "d1", signToken(t, "wrong", "d1")))
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
	})

	t.Run("placeholder credential rejected when secret set", func(t *testing.T) {
		_, err := a.Authenticate(connectMsg("u1", "d1", "wl_device_secret"))
		require.Error(t, err)
	})
}
