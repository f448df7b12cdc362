// Package wallet provides a wallet capability backed by a local secp256k1
// key, for headless use and tests.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/clearview/core"
)

// ApproveFunc decides whether a signing request is approved
type ApproveFunc func(msg []byte) bool

// LocalWallet signs with a private key held in process
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	approve ApproveFunc
}

// NewLocalWallet creates a wallet from a hex private key
func NewLocalWallet(hexKey string) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return FromKey(key), nil
}

// FromKey wraps an existing private key
func FromKey(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{key: key}
}

// WithApproval returns a copy of w that asks approve before every signature
func (w *LocalWallet) WithApproval(approve ApproveFunc) *LocalWallet {
	return &LocalWallet{key: w.key, approve: approve}
}

// Address returns the wallet address
func (w *LocalWallet) Address(ctx context.Context) (common.Address, error) {
	if w == nil || w.key == nil {
		return common.Address{}, core.ErrWalletUnavailable
	}
	return crypto.PubkeyToAddress(w.key.PublicKey), nil
}

// SignMessage personal_signs msg
func (w *LocalWallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if w == nil || w.key == nil {
		return nil, core.ErrWalletUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.approve != nil && !w.approve(msg) {
		return nil, core.ErrSigningRejected
	}
	return core.SignText(w.key, msg)
}
