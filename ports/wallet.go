package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the wallet-connection capability
type Wallet interface {
	// Address returns the connected account, or core.ErrWalletUnavailable
	Address(ctx context.Context) (common.Address, error)

	// SignMessage asks the holder to personal_sign msg. A declined prompt
	// returns core.ErrSigningRejected.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}
