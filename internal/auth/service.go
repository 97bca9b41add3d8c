package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/taktline/takt/internal/clock"
)

// Service resolves credentials to identities and issues API tokens.
type Service struct {
	roster   *Roster
	secret   []byte
	tokenTTL time.Duration
	clock    clock.Clock
}

type ServiceOptions struct {
	Secret   string
	TokenTTL time.Duration
	Clock    clock.Clock
}

func NewService(roster *Roster, opts ServiceOptions) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Service{
		roster:   roster,
		secret:   []byte(opts.Secret),
		tokenTTL: opts.TokenTTL,
		clock:    opts.Clock,
	}
}

// Resolve maps a scanned badge credential to an identity. Unknown and
// inactive credentials come back as typed denials so the caller can show
// the operator why the scan was rejected.
func (s *Service) Resolve(credential string) (Identity, error) {
	u, err := s.roster.GetByCredential(credential)
	if err != nil {
		return Identity{}, &AuthzError{Reason: DenyCredentialNotFound}
	}
	if !u.Active {
		return Identity{}, &AuthzError{Reason: DenyInactive}
	}
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role, Active: true}, nil
}

// RequireSupervisor checks supervisor authority on an already resolved
// identity.
func (s *Service) RequireSupervisor(id Identity) error {
	if !id.Role.Supervises() {
		return &AuthzError{Reason: DenyNotAuthorized}
	}
	return nil
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Login verifies a username/password pair and issues a signed token for
// the HTTP API.
func (s *Service) Login(username, password string) (string, error) {
	u, err := s.roster.GetByUsername(username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !u.Active {
		return "", &AuthzError{Reason: DenyInactive}
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	now := s.clock.Now()
	claims := tokenClaims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify parses and validates a token issued by Login.
func (s *Service) Verify(token string) (Session, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidCredentials
	}
	return Session{UserID: claims.Subject, Username: claims.Username, Role: claims.Role}, nil
}
