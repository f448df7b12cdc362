package clearnode_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/clearview/adapters/clearnode"
	"github.com/layer-3/clearview/adapters/tokenizer"
	"github.com/layer-3/clearview/core"
)

var stubSecret = []byte("clearnode-stub")

// stubNode is a minimal ClearNode: challenge, login, logout and balances
type stubNode struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	challenges map[string]core.Challenge
	sessions   map[string]common.Address // access token -> session key
	balances   core.Tiers
	logouts    int
	balanceHit int
}

func newStubNode(t *testing.T) *stubNode {
	t.Helper()
	gin.SetMode(gin.TestMode)

	n := &stubNode{
		t:          t,
		challenges: map[string]core.Challenge{},
		sessions:   map[string]common.Address{},
		balances:   core.Tiers{},
	}

	r := gin.New()
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/auth/challenge", n.challenge)
	r.POST("/auth/login", n.login)
	r.POST("/auth/logout", n.logout)
	r.GET("/api/balances", n.getBalances)

	n.server = httptest.NewServer(r)
	t.Cleanup(n.server.Close)
	return n
}

func (n *stubNode) URL() string {
	return n.server.URL
}

func (n *stubNode) SetBalances(t core.Tiers) {
	n.mu.Lock()
	n.balances = t
	n.mu.Unlock()
}

func (n *stubNode) Logouts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logouts
}

func (n *stubNode) BalanceRequests() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balanceHit
}

func (n *stubNode) mint(claims jwt.Claims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(stubSecret)
	if err != nil {
		n.t.Errorf("mint token: %v", err)
	}
	return token
}

func (n *stubNode) challenge(c *gin.Context) {
	var req struct {
		Address    string `json:"address"`
		SessionKey string `json:"session_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	nonce := uuid.NewString()
	token := n.mint(&tokenizer.ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Address,
			Audience:  jwt.ClaimStrings{tokenizer.AudienceChallenge},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Nonce:      nonce,
		SessionKey: req.SessionKey,
	})

	n.mu.Lock()
	n.challenges[token] = core.Challenge{
		Token:      token,
		Nonce:      nonce,
		Wallet:     common.HexToAddress(req.Address),
		SessionKey: common.HexToAddress(req.SessionKey),
	}
	n.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (n *stubNode) login(c *gin.Context) {
	var req struct {
		ChallengeToken string `json:"challenge_token"`
		Signature      string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n.mu.Lock()
	challenge, ok := n.challenges[req.ChallengeToken]
	delete(n.challenges, req.ChallengeToken)
	n.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown challenge"})
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil || core.VerifyText(challenge.Message(), sig, challenge.Wallet) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	sessionID := uuid.NewString()
	access := n.mint(&tokenizer.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   challenge.Wallet.Hex(),
			Audience:  jwt.ClaimStrings{tokenizer.AudienceAccess},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		RefreshID:  "refresh-" + sessionID,
		SessionKey: challenge.SessionKey.Hex(),
	})

	n.mu.Lock()
	n.sessions[access] = challenge.SessionKey
	n.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"access_token": access, "refresh_token": "refresh-" + sessionID})
}

func (n *stubNode) logout(c *gin.Context) {
	n.mu.Lock()
	n.logouts++
	n.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (n *stubNode) getBalances(c *gin.Context) {
	access := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	n.mu.Lock()
	n.balanceHit++
	key, ok := n.sessions[access]
	tiers := n.balances
	n.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown session"})
		return
	}

	sig, err := hexutil.Decode(c.GetHeader(clearnode.HeaderSessionSignature))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session signature"})
		return
	}
	payload := clearnode.SessionPayload(c.Request.Method, c.Request.URL.Path, c.GetHeader(clearnode.HeaderSessionTimestamp))
	if core.VerifyText(payload, sig, key) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session signature"})
		return
	}

	c.JSON(http.StatusOK, clearnode.NewBalancesMessage("", tiers))
}
