package review

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// ErrInvalidToken is returned for a missing, expired or mismatched
// approval token.
var ErrInvalidToken = eris.New("review: invalid approval token")

// Claims identify the deal an approval link releases.
type Claims struct {
	DealID int `json:"deal_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 approval tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. An empty secret disables token links.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue returns a token approving dealID.
func (s *Signer) Issue(dealID int) (string, error) {
	if !s.Enabled() {
		return "", eris.New("review: approval secret not configured")
	}
	now := s.now()
	claims := &Claims{
		DealID: dealID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(dealID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", eris.Wrap(err, "review: sign token")
	}
	return token, nil
}

// Verify checks that token is valid and was issued for dealID.
func (s *Signer) Verify(token string, dealID int) error {
	if !s.Enabled() || token == "" {
		return ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return eris.Wrap(ErrInvalidToken, errString(err))
	}
	if claims.DealID != dealID {
		return eris.Wrapf(ErrInvalidToken, "token for deal %d", claims.DealID)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "invalid"
	}
	return err.Error()
}
