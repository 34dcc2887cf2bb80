package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const peerTokenType = "peer"

// Claims is the token a replica presents to a hub.
type Claims struct {
	ReplicaID string `json:"replica_id"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// Manager handles JWT operations
type Manager struct {
	secret string
	ttl    time.Duration
}

// NewManager creates new JWT manager. Peer tokens live for ttl.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: secret, ttl: ttl}
}

// GeneratePeerToken signs a short-lived peer token for replicaID
func (m *Manager) GeneratePeerToken(replicaID string) (string, error) {
	now := time.Now()
	claims := Claims{
		ReplicaID: replicaID,
		Type:      peerTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   replicaID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secret))
}

// ValidateToken validates and parses token
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ValidatePeerToken validates peer token specifically
func (m *Manager) ValidatePeerToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != peerTokenType {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", peerTokenType, claims.Type)
	}
	if claims.ReplicaID == "" {
		return nil, fmt.Errorf("peer token has no replica id")
	}

	return claims, nil
}

// PeerTokenSource issues a fresh token for one replica on every call.
type PeerTokenSource struct {
	manager   *Manager
	replicaID string
}

func NewPeerTokenSource(manager *Manager, replicaID string) *PeerTokenSource {
	return &PeerTokenSource{manager: manager, replicaID: replicaID}
}

func (s *PeerTokenSource) Token() (string, error) {
	return s.manager.GeneratePeerToken(s.replicaID)
}
