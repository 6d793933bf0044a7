package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired indica que el access token venció.
	ErrTokenExpired = errors.New("jwt: token expired")

	// ErrTokenInvalid cubre firma inválida, issuer ajeno o claims malformados.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// Claims son los claims de negocio que viajan en el access token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Issuer firma y verifica access tokens EdDSA con una clave Ed25519.
type Issuer struct {
	Iss       string
	Aud       string
	AccessTTL time.Duration

	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuer crea el emisor. seed debe ser de 32 bytes; con seed nil genera
// una clave efímera (solo para desarrollo: los tokens mueren con el proceso).
func NewIssuer(iss, aud string, seed []byte, accessTTL time.Duration) (*Issuer, error) {
	var priv ed25519.PrivateKey
	switch {
	case seed == nil:
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("jwt: generate key: %w", err)
		}
	case len(seed) == ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(seed)
	default:
		return nil, fmt.Errorf("jwt: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	pub := priv.Public().(ed25519.PublicKey)
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &Issuer{
		Iss:       iss,
		Aud:       aud,
		AccessTTL: accessTTL,
		kid:       computeKID(pub),
		priv:      priv,
		pub:       pub,
	}, nil
}

// computeKID deriva un identificador corto y estable de la clave pública.
func computeKID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return base64.RawURLEncoding.EncodeToString(sum[:])[:8]
}

// KID devuelve el identificador de la clave activa.
func (i *Issuer) KID() string { return i.kid }

// IssueAccess emite un access token con los claims estándar más los de negocio.
func (i *Issuer) IssueAccess(userID, email, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss":   i.Iss,
		"sub":   userID,
		"aud":   i.Aud,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
		"email": email,
		"role":  role,
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess valida firma, issuer, audience y expiración, y extrae los
// claims de negocio. Distingue expiración de cualquier otra invalidez.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	parsed, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) {
			if _, ok := t.Method.(*jwtv5.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected alg %v", t.Header["alg"])
			}
			return i.pub, nil
		},
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(i.Aud),
		jwtv5.WithValidMethods([]string{"EdDSA"}),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mc, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, ErrTokenInvalid
	}
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)

	var exp time.Time
	if v, err := mc.GetExpirationTime(); err == nil && v != nil {
		exp = v.Time
	}

	return &Claims{
		UserID:    sub,
		Email:     email,
		Role:      role,
		ExpiresAt: exp,
	}, nil
}
