package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTTL     = 7 * 24 * time.Hour
	magicLinkTTL = 15 * time.Minute
)

// Identity is who a request acts as. Every list, card and view access is
// scoped to WorkspaceID.
type Identity struct {
	Email       string `json:"email"`
	WorkspaceID string `json:"workspaceId"`
}

type pendingLogin struct {
	identity Identity
	expires  time.Time
}

type AuthService struct {
	mu        sync.Mutex
	tokens    map[string]pendingLogin
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		tokens:    make(map[string]pendingLogin),
		jwtSecret: []byte(secret),
		now:       time.Now,
	}
}

// PersonalWorkspace is the workspace a user lands in when none is given.
func PersonalWorkspace(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}

// GenerateMagicLink creates a one-time login link for id.
func (s *AuthService) GenerateMagicLink(id Identity, baseURL string) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	if id.WorkspaceID == "" {
		id.WorkspaceID = PersonalWorkspace(id.Email)
	}

	s.mu.Lock()
	s.tokens[token] = pendingLogin{identity: id, expires: s.now().Add(magicLinkTTL)}
	s.mu.Unlock()

	return fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, token), nil
}

// VerifyMagicLinkToken consumes a one-time token.
func (s *AuthService) VerifyMagicLinkToken(token string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	login, exists := s.tokens[token]
	if !exists || s.now().After(login.expires) {
		delete(s.tokens, token)
		return Identity{}, errors.New("invalid or expired token")
	}
	delete(s.tokens, token)
	return login.identity, nil
}

// CreateJWT generates a signed token for id.
func (s *AuthService) CreateJWT(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":     id.Email,
		"workspace": id.WorkspaceID,
		"exp":       s.now().Add(tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT verifies a token and returns the identity it carries.
func (s *AuthService) VerifyJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}
	email, ok := claims["email"].(string)
	if !ok {
		return Identity{}, errors.New("email claim missing")
	}
	workspace, ok := claims["workspace"].(string)
	if !ok || workspace == "" {
		return Identity{}, errors.New("workspace claim missing")
	}
	return Identity{Email: email, WorkspaceID: workspace}, nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
