package clearnode

import (
	"fmt"

	"github.com/layer-3/clearview/core"
	"github.com/shopspring/decimal"
)

type challengeRequest struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
}

type challengeResponse struct {
	Token string `json:"token"`
}

type loginRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Signature      string `json:"signature"`
	Address        string `json:"address"`
	SessionKey     string `json:"session_key"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// BalancesMessage is the ClearNode balance payload, shared by the HTTP
// endpoint and the pushed balance events. Figures are integers in the
// token's smallest unit.
type BalancesMessage struct {
	Wallet  string          `json:"wallet_address,omitempty"`
	OnChain decimal.Decimal `json:"wallet"`
	Custody decimal.Decimal `json:"custody"`
	Channel decimal.Decimal `json:"channel"`
	Ledger  decimal.Decimal `json:"ledger"`
}

// NewBalancesMessage encodes tiers for the wire
func NewBalancesMessage(wallet string, t core.Tiers) BalancesMessage {
	return BalancesMessage{
		Wallet:  wallet,
		OnChain: decimal.NewFromBigInt(t.Get(core.TierWallet), 0),
		Custody: decimal.NewFromBigInt(t.Get(core.TierCustody), 0),
		Channel: decimal.NewFromBigInt(t.Get(core.TierChannel), 0),
		Ledger:  decimal.NewFromBigInt(t.Get(core.TierLedger), 0),
	}
}

// Tiers decodes the message. Every tier must be a whole number of units.
func (m BalancesMessage) Tiers() (core.Tiers, error) {
	var t core.Tiers
	var err error

	if t.Wallet, err = core.ParseUnits(m.OnChain); err != nil {
		return core.Tiers{}, fmt.Errorf("wallet tier: %w", err)
	}
	if t.Custody, err = core.ParseUnits(m.Custody); err != nil {
		return core.Tiers{}, fmt.Errorf("custody tier: %w", err)
	}
	if t.Channel, err = core.ParseUnits(m.Channel); err != nil {
		return core.Tiers{}, fmt.Errorf("channel tier: %w", err)
	}
	if t.Ledger, err = core.ParseUnits(m.Ledger); err != nil {
		return core.Tiers{}, fmt.Errorf("ledger tier: %w", err)
	}
	return t, nil
}
