package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"capgate.org/internal/obs"
)

const (
	DefaultIssuer   = "capgate"
	DefaultTokenTTL = 5 * time.Minute
)

// Claims is the signed payload of a bearer token. Capabilities is a snapshot
// taken at issuance; later role changes do not alter it.
type Claims struct {
	Capabilities []string  `json:"capabilities"`
	Type         TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies bearer tokens.
type TokenService struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	singleUse bool
	used      *UsedTokenSet
	now       func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTTL sets the lifetime of user tokens issued without an explicit TTL.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: token ttl must be greater than zero", ErrConfiguration)
		}
		s.ttl = ttl
		return nil
	}
}

// WithSingleUse toggles single-use enforcement for user tokens.
func WithSingleUse(enabled bool) TokenOption {
	return func(s *TokenService) error {
		s.singleUse = enabled
		return nil
	}
}

// WithUsedTokenSet replaces the process-wide used-token set.
func WithUsedTokenSet(set *UsedTokenSet) TokenOption {
	return func(s *TokenService) error {
		if set == nil {
			return errors.New("auth: used token set is nil")
		}
		s.used = set
		return nil
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: signing secret is not set", ErrConfiguration)
	}
	s := &TokenService{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		used:   ProcessUsedTokens(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SingleUse reports whether user tokens are redeemable only once.
func (s *TokenService) SingleUse() bool {
	return s != nil && s.singleUse
}

// TTL returns the default user token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type issueParams struct {
	typ    TokenType
	ttl    time.Duration
	hasTTL bool
}

// IssueOption adjusts a single Issue call.
type IssueOption func(*issueParams)

// AsKey issues a non-expiring key token.
func AsKey() IssueOption {
	return func(p *issueParams) { p.typ = TokenTypeKey }
}

// ExpiresIn overrides the service TTL for one token. Zero or negative
// values yield a token that is already expired.
func ExpiresIn(ttl time.Duration) IssueOption {
	return func(p *issueParams) {
		p.ttl = ttl
		p.hasTTL = true
	}
}

// Issue signs a token for userID carrying a snapshot of capabilities.
func (s *TokenService) Issue(userID string, capabilities []Capability, opts ...IssueOption) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", fmt.Errorf("%w: signing secret is not set", ErrConfiguration)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	params := issueParams{typ: TokenTypeUser, ttl: s.ttl}
	for _, opt := range opts {
		opt(&params)
	}

	now := s.now().UTC()
	claims := Claims{
		Capabilities: CapabilityStrings(dedupeCapabilities(capabilities)),
		Type:         params.typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if params.typ != TokenTypeKey {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(params.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", ErrConfiguration, err)
	}
	obs.RecordTokenIssued(string(params.typ))
	return signed, nil
}

// Verify checks raw and returns the identity it carries. With single-use
// enforcement enabled a user token verifies successfully at most once.
func (s *TokenService) Verify(raw string) (Identity, error) {
	identity, err := s.verify(raw)
	obs.RecordTokenVerification(Kind(err))
	return identity, err
}

func (s *TokenService) verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	if s == nil || len(s.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: signing secret is not set", ErrConfiguration)
	}
	// Only user tokens are ever recorded, so membership alone implies reuse.
	if s.singleUse && s.used.Contains(raw) {
		return Identity{}, ErrTokenReused
	}

	claims, err := s.parse(raw)
	if err != nil {
		return Identity{}, err
	}

	if claims.Type != TokenTypeKey {
		if claims.ExpiresAt == nil {
			return Identity{}, fmt.Errorf("%w: missing expiry", ErrMalformedToken)
		}
		if !s.now().Before(claims.ExpiresAt.Time) {
			return Identity{}, ErrTokenExpired
		}
		if s.singleUse && !s.used.Redeem(raw) {
			return Identity{}, ErrTokenReused
		}
	}

	return Identity{
		UserID:       claims.Subject,
		Capabilities: ParseCapabilities(claims.Capabilities),
		TokenType:    claims.Type,
	}, nil
}

func (s *TokenService) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrMalformedToken, claims.Issuer)
	}
	switch claims.Type {
	case TokenTypeUser, TokenTypeKey:
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", ErrMalformedToken, claims.Type)
	}
	return claims, nil
}
