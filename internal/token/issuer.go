package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smartwatts/device-verification/internal/trust"
)

const tokenTypeActivation = "ACTIVATION"

var (
	// ErrSigningKeyUnavailable means the service cannot mint tokens at all.
	// It is a configuration failure and must reach operators, not be retried.
	ErrSigningKeyUnavailable = errors.New("activation signing key unavailable")

	ErrExpired    = errors.New("activation token expired")
	ErrTampered   = errors.New("activation token signature invalid")
	ErrSuperseded = errors.New("activation token superseded by a newer generation")
)

// Binding is the set of fields a token cryptographically binds together.
type Binding struct {
	DeviceID      string
	Expiry        time.Time
	TrustCategory trust.Category
	Sequence      int64
}

type activationClaims struct {
	DeviceID      string `json:"device_id"`
	TrustCategory string `json:"trust_category"`
	Sequence      int64  `json:"seq"`
	TokenType     string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HMAC-signed activation tokens. It holds no
// state beyond the key; expiry and sequence truth live on the
// ActivationRecord.
type Issuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuerName string) *Issuer {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Issuer{
		key:    key,
		issuer: issuerName,
		now:    time.Now,
	}
}

// Issue signs a token binding the device ID, expiry, trust category and
// issuance sequence number.
func (i *Issuer) Issue(deviceID string, expiry time.Time, category trust.Category, sequence int64) (string, error) {
	if len(i.key) == 0 {
		return "", ErrSigningKeyUnavailable
	}

	now := i.now()
	claims := activationClaims{
		DeviceID:      deviceID,
		TrustCategory: string(category),
		Sequence:      sequence,
		TokenType:     tokenTypeActivation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
	}
	return signed, nil
}

// Verify recomputes the signature and checks expiry. The sequence number
// check against the current ActivationRecord belongs to the orchestrator,
// which owns record state.
func (i *Issuer) Verify(tokenString string) (Binding, error) {
	if len(i.key) == 0 {
		return Binding{}, ErrSigningKeyUnavailable
	}

	claims := &activationClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Binding{}, ErrTampered
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Binding{}, ErrExpired
		}
		// Malformed tokens and claim failures are indistinguishable from
		// tampering for our purposes.
		return Binding{}, fmt.Errorf("%w: %v", ErrTampered, err)
	}

	if claims.TokenType != tokenTypeActivation || claims.DeviceID == "" {
		return Binding{}, ErrTampered
	}

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return Binding{
		DeviceID:      claims.DeviceID,
		Expiry:        expiry,
		TrustCategory: trust.Category(claims.TrustCategory),
		Sequence:      claims.Sequence,
	}, nil
}

// Digest returns the SHA-256 hex digest of a token. Records store the
// digest, never the raw credential.
func Digest(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}
