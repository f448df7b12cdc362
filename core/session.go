package core

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SessionKey is an ephemeral secp256k1 key that authorizes session-scoped
// requests without prompting the wallet again
type SessionKey struct {
	key *ecdsa.PrivateKey
}

// NewSessionKey generates a fresh session key
func NewSessionKey() (SessionKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return SessionKey{}, fmt.Errorf("failed to generate session key: %w", err)
	}
	return SessionKey{key: key}, nil
}

// ParseSessionKey decodes a key previously produced by SessionKey.Hex
func ParseSessionKey(s string) (SessionKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return SessionKey{}, fmt.Errorf("invalid session key: %w", err)
	}
	return SessionKey{key: key}, nil
}

// IsZero reports whether the key is unset
func (k SessionKey) IsZero() bool {
	return k.key == nil
}

// Address returns the Ethereum address of the session key
func (k SessionKey) Address() common.Address {
	if k.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// Hex returns the 0x-prefixed private key, the form persisted in a KeyStore
func (k SessionKey) Hex() string {
	if k.key == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(k.key))
}

// Sign signs msg with the session key
func (k SessionKey) Sign(msg []byte) ([]byte, error) {
	if k.key == nil {
		return nil, fmt.Errorf("session key is not set: %w", ErrInvalidSignature)
	}
	return SignText(k.key, msg)
}

// Challenge is an authentication challenge issued by the ClearNode
type Challenge struct {
	Token      string         // Opaque token echoed back on login
	Nonce      string         // Random nonce bound into the signed message
	Wallet     common.Address // Wallet the challenge was issued for
	SessionKey common.Address // Session key being registered
	ExpiresAt  time.Time
}

// Message returns the bytes the wallet is asked to sign
func (c Challenge) Message() []byte {
	return []byte(fmt.Sprintf(
		"Sign in to ClearNode\nWallet: %s\nSession key: %s\nNonce: %s",
		c.Wallet.Hex(), c.SessionKey.Hex(), c.Nonce,
	))
}

// Grant holds the credentials the ClearNode returns once a session is
// established
type Grant struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Session is one authenticated ClearNode session
type Session struct {
	ID              string
	Wallet          common.Address
	SessionKey      SessionKey
	Grant           Grant
	Degraded        bool // session key is held in memory only
	AuthenticatedAt time.Time
}

// SessionEvent is published whenever a session changes status
type SessionEvent struct {
	Wallet     string    `json:"wallet"`
	SessionKey string    `json:"session_key,omitempty"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}
