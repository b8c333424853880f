// Package auth provides JWT verification helpers.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens and extracts role/operator claims.
// Supports modes: dev (no verify), hmac (HS256), jwks (RS256 from JWKS URL).
type Verifier struct {
	Mode          string
	HMACSecret    []byte
	JWKSURL       string
	RoleClaim     string
	OperatorClaim string
	http          *http.Client
	mu            sync.RWMutex
	jwks          jwks
	lastFetch     time.Time
	cacheTTL      time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type Principal struct {
	Role       string
	OperatorID string
}

// NewVerifier builds a verifier for mode ("dev" when empty).
func NewVerifier(mode, hmacSecret, jwksURL string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:          mode,
		HMACSecret:    []byte(hmacSecret),
		JWKSURL:       jwksURL,
		RoleClaim:     "role",
		OperatorClaim: "sub",
		http:          &http.Client{Timeout: 5 * time.Second},
		cacheTTL:      10 * time.Minute,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: role[:operatorId]
		role, operator, _ := strings.Cut(token, ":")
		if role == "" {
			return Principal{}, errors.New("invalid dev token; expected role:operatorId")
		}
		return Principal{Role: strings.ToLower(role), OperatorID: operator}, nil
	}
	var (
		keyFunc jwt.Keyfunc
		alg     string
	)
	switch v.Mode {
	case "hmac":
		alg = jwt.SigningMethodHS256.Alg()
		keyFunc = func(*jwt.Token) (any, error) { return v.HMACSecret, nil }
	case "jwks":
		alg = jwt.SigningMethodRS256.Alg()
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.getRSAPublicKey(kid)
		}
	default:
		return Principal{}, errors.New("unsupported auth mode")
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc, jwt.WithValidMethods([]string{alg})); err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	role, _ := claims[v.RoleClaim].(string)
	operator, _ := claims[v.OperatorClaim].(string)
	if role == "" {
		role = "operator"
	}
	return Principal{Role: strings.ToLower(role), OperatorID: operator}, nil
}

// get RSAPublicKey from JWKS cache/fetch
func (v *Verifier) getRSAPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: bytesToInt(eBytes)}, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

// bytesToInt decodes a big-endian exponent such as 0x010001.
func bytesToInt(b []byte) int {
	var x int
	for _, v := range b {
		x = (x << 8) | int(v)
	}
	return x
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	resp, err := v.http.Get(v.JWKSURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status %d", resp.StatusCode)
	}
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return err
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
