package auth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserAddressKey is the gin context key holding the authenticated address.
const UserAddressKey = "user_address"

// clockSkew is how far in the future a token timestamp may be.
const clockSkew = 60 * time.Second

// AuthMiddleware authenticates requests signed with an Ethereum key
type AuthMiddleware struct {
	nonceMu     sync.Mutex
	nonceStore  map[string]time.Time
	nonceWindow time.Duration
	now         func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware. Tokens older
// than window are rejected and nonces are remembered for as long.
func NewAuthMiddleware(window time.Duration) *AuthMiddleware {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &AuthMiddleware{
		nonceStore:  make(map[string]time.Time),
		nonceWindow: window,
		now:         time.Now,
	}
}

// Message is the text a client signs for nonce and timestamp.
func Message(nonce string, timestamp int64) string {
	return fmt.Sprintf("AetherDEX Staking Auth:%s:%d", nonce, timestamp)
}

// SignToken builds a bearer token for key. Used by clients and tests.
func SignToken(key *ecdsa.PrivateKey, nonce string, timestamp int64) (string, error) {
	sig, err := crypto.Sign(personalHash(Message(nonce, timestamp)), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return fmt.Sprintf("0x%s:%s:%d:%s", hex.EncodeToString(sig), nonce, timestamp, address), nil
}

// UserAddress returns the address set by RequireAuth.
func UserAddress(c *gin.Context) (string, bool) {
	address := c.GetString(UserAddressKey)
	return address, address != ""
}

// RequireAuth middleware that requires authentication
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "AUTH_HEADER_MISSING",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format",
				"code":  "INVALID_AUTH_FORMAT",
			})
			return
		}

		address, err := am.verifySignatureToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			logrus.WithError(err).WithField("path", c.FullPath()).Warn("Authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication failed",
				"code":  "AUTH_FAILED",
			})
			return
		}

		c.Set(UserAddressKey, address)
		c.Next()
	}
}

// verifySignatureToken checks a "signature:nonce:timestamp:address" token
// and returns the checksummed address
func (am *AuthMiddleware) verifySignatureToken(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("invalid token format")
	}
	signature, nonce, timestampStr, address := parts[0], parts[1], parts[2], parts[3]

	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address format")
	}
	if nonce == "" || len(nonce) > 128 {
		return "", fmt.Errorf("invalid nonce length")
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp")
	}

	now := am.now()
	issued := time.Unix(timestamp, 0)
	if now.Sub(issued) > am.nonceWindow || issued.Sub(now) > clockSkew {
		return "", fmt.Errorf("timestamp out of valid range")
	}

	if err := verifyEthereumSignature(Message(nonce, timestamp), signature, address); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	checksummed := common.HexToAddress(address).Hex()
	if err := am.useNonce(checksummed+":"+nonce, now); err != nil {
		return "", err
	}
	return checksummed, nil
}

// useNonce records key, failing if it was seen inside the window
func (am *AuthMiddleware) useNonce(key string, now time.Time) error {
	am.nonceMu.Lock()
	defer am.nonceMu.Unlock()

	for k, seen := range am.nonceStore {
		if now.Sub(seen) > am.nonceWindow {
			delete(am.nonceStore, k)
		}
	}

	if seen, exists := am.nonceStore[key]; exists && now.Sub(seen) <= am.nonceWindow {
		return fmt.Errorf("nonce already used")
	}
	am.nonceStore[key] = now
	return nil
}

// personalHash hashes message the way personal_sign does
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// verifyEthereumSignature verifies an Ethereum personal signature
func verifyEthereumSignature(message, signature, expectedAddress string) error {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("invalid signature length")
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(personalHash(message), sigBytes)
	if err != nil {
		return fmt.Errorf("failed to recover public key")
	}

	if !strings.EqualFold(crypto.PubkeyToAddress(*pubKey).Hex(), expectedAddress) {
		return fmt.Errorf("signature address mismatch")
	}
	return nil
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// SecureCORS allows the listed origins. "*" allows any.
func SecureCORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		for _, allowed := range allowedOrigins {
			if allowed == "*" || origin == allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				break
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// OriginAllowed reports whether origin may open a websocket.
func OriginAllowed(allowedOrigins []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}
