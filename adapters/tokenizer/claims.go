package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ChallengeClaims are carried by a ClearNode challenge token
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Nonce      string `json:"nonce"`
	SessionKey string `json:"skey,omitempty"` // session key being registered
}

// AccessClaims are carried by a ClearNode access token
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID  string `json:"rid"` // ID of the refresh token
	SessionKey string `json:"skey,omitempty"`
}
