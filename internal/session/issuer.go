package session

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"
	"github.com/spotseeker/apiserver/types"
)

// TokenName labels every persisted session token.
const TokenName = "auth_token"

const defaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingID    = errors.New("token has no id")
)

// Claims is the parsed content of a bearer token.
type Claims struct {
	AccountID int64
	TokenID   string
	ExpiresAt time.Time
}

// Issuer mints and parses signed bearer tokens. A bearer is only honoured by the
// services while its SessionToken row exists, so revocation is a row delete.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint returns the row to persist and the raw bearer string handed to the client.
func (i *Issuer) Mint(accountID int64) (types.SessionToken, string, error) {
	now := i.now()
	record := types.SessionToken{
		ID:        ksuid.New().String(),
		AccountID: accountID,
		Name:      TokenName,
		ExpiresAt: now.Add(i.ttl),
		CreatedAt: now,
	}

	claims := jwt.RegisteredClaims{
		ID:        record.ID,
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(i.secret)
	if err != nil {
		return types.SessionToken{}, "", err
	}
	return record, raw, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (i *Issuer) Parse(raw string) (Claims, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	accountID, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || accountID < 1 {
		return Claims{}, ErrInvalidToken
	}
	if claims.ID == "" {
		return Claims{}, ErrMissingID
	}

	parsed := Claims{AccountID: accountID, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}
