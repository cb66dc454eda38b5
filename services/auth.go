package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrChallengeExpired = errors.New("challenge expired or unknown")
)

// WalletClaims is the JWT payload for an authenticated wallet.
type WalletClaims struct {
	Address string   `json:"address"`
	Type    string   `json:"type"` // always "wallet"
	Roles   []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type AuthUser struct {
	ID      string   `json:"id"` // lowercase wallet address
	Address string   `json:"address"`
	Roles   []string `json:"roles,omitempty"`
}

// AuthService issues JWTs for wallets that prove key ownership by signing a
// server-generated challenge. Sessions, challenges and the token blacklist
// live in the shared cache.
type AuthService struct {
	Cache       Cache
	Secret      []byte
	TokenExpiry time.Duration
	AdminAddrs  map[string]bool // lowercase addresses granted the admin role
}

func NewAuthService(cache Cache, secret string, tokenExpiry time.Duration, adminAddrs []string) *AuthService {
	admins := make(map[string]bool, len(adminAddrs))
	for _, a := range adminAddrs {
		admins[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return &AuthService{
		Cache:       cache,
		Secret:      []byte(secret),
		TokenExpiry: tokenExpiry,
		AdminAddrs:  admins,
	}
}

func challengeKey(address string) string {
	return "challenge:" + strings.ToLower(address)
}

// Challenge generates the message the wallet must sign. Valid for 5 minutes.
func (s *AuthService) Challenge(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: not a hex address", ErrInvalidSignature)
	}

	message := fmt.Sprintf(
		"Welcome to Quest Hunt!\n\nPlease sign this message to authenticate your wallet.\n\nAddress: %s\nTimestamp: %d\nNonce: %s",
		address, time.Now().UnixMilli(), uuid.NewString(),
	)
	if err := s.Cache.Set(ctx, challengeKey(address), message, 5*time.Minute); err != nil {
		return "", err
	}
	return message, nil
}

// Verify checks the signature against the outstanding challenge and issues a
// JWT whose subject is the lowercase wallet address.
func (s *AuthService) Verify(ctx context.Context, address, signature, message string) (string, AuthUser, error) {
	var user AuthUser

	var stored string
	found, err := s.Cache.Get(ctx, challengeKey(address), &stored)
	if err != nil {
		return "", user, err
	}
	if !found || stored != message {
		return "", user, ErrChallengeExpired
	}

	recovered, err := recoverSigner(message, signature)
	if err != nil {
		return "", user, err
	}
	if !strings.EqualFold(recovered, address) {
		return "", user, ErrInvalidSignature
	}

	// Challenges are single-use.
	if err := s.Cache.Del(ctx, challengeKey(address)); err != nil {
		log.Printf("⚠️ Failed to delete used challenge for %s: %v", address, err)
	}

	userID := strings.ToLower(address)
	var roles []string
	if s.AdminAddrs[userID] {
		roles = append(roles, "admin")
	}

	token, err := s.issueToken(userID, roles)
	if err != nil {
		return "", user, err
	}

	sessionID := uuid.NewString()
	if err := s.Cache.SetSession(ctx, sessionID, Session{
		UserID:    userID,
		Address:   userID,
		LoginTime: time.Now().UTC(),
	}); err != nil {
		log.Printf("⚠️ Failed to store session for %s: %v", userID, err)
	}
	if err := s.Cache.TrackActivity(ctx, userID, "wallet_login"); err != nil {
		log.Printf("⚠️ Failed to track login for %s: %v", userID, err)
	}

	user = AuthUser{ID: userID, Address: userID, Roles: roles}
	return token, user, nil
}

// recoverSigner recovers the address that produced an EIP-191 personal-sign
// signature over message.
func recoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	// Wallets produce V as 27/28; go-ethereum expects 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: recovery failed", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func (s *AuthService) issueToken(userID string, roles []string) (string, error) {
	now := time.Now()
	claims := WalletClaims{
		Address: userID,
		Type:    "wallet",
		Roles:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// ParseToken validates a JWT and returns its claims. Blacklist checks are the
// middleware's job; this only proves signature and expiry.
func (s *AuthService) ParseToken(tokenStr string) (*WalletClaims, error) {
	claims := &WalletClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh issues a fresh token and blacklists the old one for the remainder
// of its lifetime.
func (s *AuthService) Refresh(ctx context.Context, oldToken string) (string, error) {
	claims, err := s.ParseToken(oldToken)
	if err != nil {
		return "", err
	}
	token, err := s.issueToken(claims.Subject, claims.Roles)
	if err != nil {
		return "", err
	}
	s.blacklist(ctx, oldToken, claims)
	return token, nil
}

// Logout blacklists the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenStr string) error {
	claims, err := s.ParseToken(tokenStr)
	if err != nil {
		return err
	}
	s.blacklist(ctx, tokenStr, claims)
	if err := s.Cache.TrackActivity(ctx, claims.Subject, "logout"); err != nil {
		log.Printf("⚠️ Failed to track logout for %s: %v", claims.Subject, err)
	}
	return nil
}

func (s *AuthService) blacklist(ctx context.Context, tokenStr string, claims *WalletClaims) {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return
	}
	if err := s.Cache.Set(ctx, "blacklist:"+tokenStr, true, remaining); err != nil {
		log.Printf("⚠️ Failed to blacklist token for %s: %v", claims.Subject, err)
	}
}

// IsBlacklisted reports whether the token was revoked by logout/refresh.
func (s *AuthService) IsBlacklisted(ctx context.Context, tokenStr string) (bool, error) {
	return s.Cache.Exists(ctx, "blacklist:"+tokenStr)
}
