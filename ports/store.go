package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// KeyStore persists one session key per wallet address
type KeyStore interface {
	// LoadSessionKey returns core.ErrSessionKeyNotFound when the wallet has no key
	LoadSessionKey(ctx context.Context, wallet common.Address) (string, error)
	SaveSessionKey(ctx context.Context, wallet common.Address, key string) error
}
