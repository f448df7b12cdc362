// Package tokenizer reads the JWTs a ClearNode hands out during
// authentication.
package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/clearview/core"
)

const AudienceChallenge = "session:challenge"
const AudienceAccess = "session:access"

// Parser converts ClearNode tokens to domain values. Without a public key
// the signature is not checked; the ClearNode verifies its own tokens when
// they are echoed back, so the client only needs the claims.
type Parser struct {
	key *ecdsa.PublicKey
	now func() time.Time
}

// NewParser creates a parser. key may be nil.
func NewParser(key *ecdsa.PublicKey) *Parser {
	return &Parser{key: key, now: time.Now}
}

// LoadPublicKey reads a PEM encoded ECDSA public key
func LoadPublicKey(path string) (*ecdsa.PublicKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := jwt.ParseECPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// ParseChallenge converts a challenge token into a Challenge
func (p *Parser) ParseChallenge(tokenStr string) (core.Challenge, error) {
	claims := &ChallengeClaims{}
	if err := p.parse(tokenStr, claims, AudienceChallenge); err != nil {
		return core.Challenge{}, err
	}
	if claims.Nonce == "" {
		return core.Challenge{}, fmt.Errorf("challenge has no nonce: %w", core.ErrInvalidToken)
	}
	if !common.IsHexAddress(claims.Subject) {
		return core.Challenge{}, fmt.Errorf("challenge subject is not an address: %w", core.ErrInvalidToken)
	}

	challenge := core.Challenge{
		Token:     tokenStr,
		Nonce:     claims.Nonce,
		Wallet:    common.HexToAddress(claims.Subject),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if common.IsHexAddress(claims.SessionKey) {
		challenge.SessionKey = common.HexToAddress(claims.SessionKey)
	}
	return challenge, nil
}

// ParseGrant reads the access token and pairs it with the refresh token
func (p *Parser) ParseGrant(accessToken, refreshToken string) (core.Grant, error) {
	claims := &AccessClaims{}
	if err := p.parse(accessToken, claims, AudienceAccess); err != nil {
		return core.Grant{}, err
	}

	return core.Grant{
		SessionID:    claims.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (p *Parser) parse(tokenStr string, claims jwt.Claims, audience string) error {
	if p.key != nil {
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return p.key, nil
		}, jwt.WithAudience(audience), jwt.WithExpirationRequired(), jwt.WithTimeFunc(p.now))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return core.ErrTokenExpired
			}
			return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
		}
		return nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains([]string(aud), audience) {
		return fmt.Errorf("%w: unexpected audience", core.ErrInvalidToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("%w: missing expiry", core.ErrInvalidToken)
	}
	if !exp.After(p.now()) {
		return core.ErrTokenExpired
	}
	return nil
}
