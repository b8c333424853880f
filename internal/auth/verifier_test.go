package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyDevToken(t *testing.T) {
	v := NewVerifier("", "", "")
	p, err := v.Verify("Manager:O1")
	require.NoError(t, err)
	assert.Equal(t, Principal{Role: "manager", OperatorID: "O1"}, p)

	p, err = v.Verify("admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Role)

	_, err = v.Verify("")
	assert.Error(t, err)
}

func TestVerifyHMAC(t *testing.T) {
	v := NewVerifier("hmac", "s3cret", "")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "O7",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	p, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, Principal{Role: "admin", OperatorID: "O7"}, p)

	forged, _ := tok.SignedString([]byte("other"))
	_, err = v.Verify(forged)
	assert.Error(t, err)

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}).SignedString([]byte("s3cret"))
	_, err = v.Verify(expired)
	assert.Error(t, err)
}

func TestVerifyHMACDefaultsRole(t *testing.T) {
	v := NewVerifier("hmac", "k", "")
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "O1"}).SignedString([]byte("k"))
	p, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "operator", p.Role)
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewVerifier("jwks", "", srv.URL)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "O2", "role": "manager"})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, Principal{Role: "manager", OperatorID: "O2"}, p)

	tok.Header["kid"] = "missing"
	signed, _ = tok.SignedString(key)
	_, err = v.Verify(signed)
	assert.Error(t, err)

	hs, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).SignedString([]byte("x"))
	_, err = v.Verify(hs)
	assert.Error(t, err, "jwks mode only accepts RS256")
}
