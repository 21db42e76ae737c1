package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	shareLinkAudience = "bill-share"
	shareLinkIssuer   = "billdesk"
)

var ErrInvalidShareLink = errors.New("invalid or expired share link")

// ShareLinkManager signs capability tokens that grant read access to one
// bill's PDF until they expire. It does not identify the holder.
type ShareLinkManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewShareLinkManager returns nil when secret is blank, which disables share
// links.
func NewShareLinkManager(secret string, ttl time.Duration) *ShareLinkManager {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ShareLinkManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *ShareLinkManager) Issue(storeID string) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)
	claims := jwtlib.RegisteredClaims{
		Subject:   storeID,
		Audience:  jwtlib.ClaimStrings{shareLinkAudience},
		Issuer:    shareLinkIssuer,
		IssuedAt:  jwtlib.NewNumericDate(issuedAt),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse returns the store ID a valid token grants access to.
func (m *ShareLinkManager) Parse(tokenStr string) (string, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithAudience(shareLinkAudience),
		jwtlib.WithIssuer(shareLinkIssuer),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidShareLink
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidShareLink
	}
	return sub, nil
}
