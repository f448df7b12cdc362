package core

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignText produces a 65-byte personal_sign (EIP-191) signature over msg
// with V in the 27/28 form wallets return.
func SignText(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverText returns the address that produced a personal_sign signature
func RecoverText(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, ErrInvalidSignature)
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyText checks that sig over msg was produced by expected
func VerifyText(msg, sig []byte, expected common.Address) error {
	addr, err := RecoverText(msg, sig)
	if err != nil {
		return err
	}
	if addr != expected {
		return ErrInvalidSignature
	}
	return nil
}
