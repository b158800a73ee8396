package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "valid config",
			config: Config{SecretKey: testSecret, Duration: time.Hour},
		},
		{
			name:    "empty secret",
			config:  Config{Duration: time.Hour},
			wantErr: ErrEmptySecretKey,
		},
		{
			name:    "weak secret",
			config:  Config{SecretKey: "short", Duration: time.Hour},
			wantErr: ErrWeakSecretKey,
		},
		{
			name:    "non-positive duration",
			config:  Config{SecretKey: testSecret},
			wantErr: ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc, err := NewService(Config{SecretKey: testSecret, Duration: time.Hour})
	require.NoError(t, err)

	token, err := svc.GenerateToken("alice", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateToken_Invalid(t *testing.T) {
	svc, err := NewService(Config{SecretKey: testSecret, Duration: time.Hour})
	require.NoError(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// signed with a different key
	other, err := NewService(Config{SecretKey: "ffffffffffffffffffffffffffffffff", Duration: time.Hour})
	require.NoError(t, err)
	token, err := other.GenerateToken("alice", "admin")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	svc, err := NewService(Config{SecretKey: testSecret, Duration: time.Hour})
	require.NoError(t, err)

	claims := &Claims{
		Subject: "alice",
		Role:    "admin",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongAlgorithm(t *testing.T) {
	svc, err := NewService(Config{SecretKey: testSecret, Duration: time.Hour})
	require.NoError(t, err)

	// alg=none tokens must never validate
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, &Claims{Subject: "alice"}).
		SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
