// Package google implementa el login OAuth con Google vía OIDC: intercambio
// del authorization code y verificación local del id_token contra el JWKS
// publicado.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// Identity es lo que el resto del sistema necesita saber de un login Google.
type Identity struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
}

// Config son las credenciales de la aplicación registrada en Google.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Client habla con los endpoints OIDC de Google. El discovery document y el
// JWKS se cachean con sus propias ventanas de frescura.
type Client struct {
	cfg  Config
	http *http.Client

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time

	keys     *jwks
	keysAt   time.Time
	keysETag string
}

// New crea el cliente OIDC.
func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL construye la URL de autorización a la que redirigir al navegador.
func (c *Client) AuthURL(ctx context.Context, state, nonce string) (string, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate intercambia el authorization code y verifica el id_token
// resultante. Retorna la identidad de Google o error si cualquier paso falla
// (código vencido o ya usado, firma inválida, aud ajeno).
func (c *Client) Authenticate(ctx context.Context, code string) (*Identity, error) {
	idToken, err := c.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.verifyIDToken(ctx, idToken)
}

func (c *Client) exchangeCode(ctx context.Context, code string) (string, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return "", fmt.Errorf("google: token http %d: %s %s", resp.StatusCode, body.Error, body.ErrorDescription)
	}

	var tr struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.IDToken == "" {
		return "", errors.New("google: token response without id_token")
	}
	return tr.IDToken, nil
}

func (c *Client) verifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, errors.New("google: malformed id_token")
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, err
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("google: unexpected alg %q", header.Alg)
	}

	key, err := c.keyForKid(ctx, header.Kid)
	if err != nil {
		return nil, err
	}

	tok, err := jwtv5.Parse(idToken,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithIssuedAt(),
	)
	if err != nil || !tok.Valid {
		return nil, errors.New("google: invalid id_token")
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, errors.New("google: unexpected claims type")
	}

	iss, _ := claims["iss"].(string)
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, fmt.Errorf("google: bad iss %q", iss)
	}
	if !c.audMatches(claims["aud"]) {
		return nil, errors.New("google: bad aud")
	}
	if expf, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(expf), 0).Before(time.Now().Add(-30 * time.Second)) {
			return nil, errors.New("google: id_token expired")
		}
	}

	id := &Identity{Sub: strClaim(claims, "sub"), Name: strClaim(claims, "name")}
	id.Email = strClaim(claims, "email")
	id.EmailVerified, _ = claims["email_verified"].(bool)
	return id, nil
}

func (c *Client) audMatches(aud any) bool {
	switch a := aud.(type) {
	case string:
		return a == c.cfg.ClientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == c.cfg.ClientID {
				return true
			}
		}
	}
	return false
}

func (c *Client) discovery(ctx context.Context) (*discoveryDoc, error) {
	c.mu.RLock()
	disc := c.disc
	fresh := time.Since(c.discAt) < 24*time.Hour
	c.mu.RUnlock()
	if disc != nil && fresh {
		return disc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.disc = &dd
	c.discAt = time.Now()
	c.mu.Unlock()
	return &dd, nil
}

func (c *Client) keyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := c.discovery(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := c.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range keys.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		e := 0
		for _, b := range eb {
			e = (e << 8) | int(b)
		}
		if e == 0 {
			e = 65537
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
	}
	return nil, fmt.Errorf("google: signing key %q not in jwks", kid)
}

func (c *Client) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	c.mu.RLock()
	cached := c.keys
	fresh := time.Since(c.keysAt) < time.Hour
	c.mu.RUnlock()
	if cached != nil && fresh {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if c.keysETag != "" {
		req.Header.Set("If-None-Match", c.keysETag)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		c.mu.Lock()
		out := c.keys
		c.keysAt = time.Now()
		c.mu.Unlock()
		return out, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("google: jwks http %d", resp.StatusCode)
	}

	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys = &jj
	c.keysAt = time.Now()
	c.keysETag = resp.Header.Get("ETag")
	c.mu.Unlock()
	return &jj, nil
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}
