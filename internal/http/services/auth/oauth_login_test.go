package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/oauth/google"
)

type fakeOAuth struct {
	byCode map[string]*google.Identity
	err    error
}

func (f *fakeOAuth) Authenticate(_ context.Context, code string) (*google.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id, ok := f.byCode[code]; ok {
		return id, nil
	}
	return nil, errors.New("google: token http 400: invalid_grant")
}

func newOAuthLoginService(t *testing.T, users *fakeUsers, toks *fakeTokens, oauth OAuthVerifier) LoginService {
	t.Helper()
	issuer, err := jwtx.NewIssuer("https://campuskey.test", "campuskey-api", nil, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	m := &minter{issuer: issuer, tokens: toks, refreshTTL: 24 * time.Hour}
	return NewLoginService(LoginDeps{Users: users, Broker: newTestBroker(), Minter: m, OAuth: oauth})
}

func TestOAuthLoginIssuesTokens(t *testing.T) {
	users := newFakeUsers()
	u := users.add("ana@uni.edu", types.RoleStudent, "secret-pass")
	oauth := &fakeOAuth{byCode: map[string]*google.Identity{
		"good-code": {Sub: "g-1", Email: "Ana@uni.edu", EmailVerified: true},
	}}
	svc := newOAuthLoginService(t, users, newFakeTokens(), oauth)

	res, err := svc.LoginOAuth(context.Background(), dto.OAuthLoginRequest{Code: "good-code"})
	if err != nil {
		t.Fatalf("LoginOAuth: %v", err)
	}
	if res.TokenPair == nil || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected full token pair")
	}
	if res.User == nil || res.User.ID != u.ID {
		t.Fatalf("user payload should be %s", u.ID)
	}
}

func TestOAuthLoginAdminGetsChallenge(t *testing.T) {
	users := newFakeUsers()
	users.add("dir@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	oauth := &fakeOAuth{byCode: map[string]*google.Identity{
		"good-code": {Sub: "g-2", Email: "dir@uni.edu", EmailVerified: true},
	}}
	svc := newOAuthLoginService(t, users, newFakeTokens(), oauth)

	res, err := svc.LoginOAuth(context.Background(), dto.OAuthLoginRequest{Code: "good-code"})
	if err != nil {
		t.Fatalf("LoginOAuth: %v", err)
	}
	if !res.MFARequired || res.MFAID == "" {
		t.Fatal("admin oauth login must require mfa")
	}
	if res.TokenPair != nil {
		t.Fatal("no tokens before second factor")
	}
}

func TestOAuthLoginFailuresCollapse(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "secret-pass")

	cases := []struct {
		name  string
		oauth *fakeOAuth
		code  string
	}{
		{"exchange rechazado", &fakeOAuth{err: errors.New("google: token http 400")}, "x"},
		{"email sin cuenta", &fakeOAuth{byCode: map[string]*google.Identity{
			"c": {Sub: "g-3", Email: "nadie@uni.edu", EmailVerified: true},
		}}, "c"},
		{"email sin verificar", &fakeOAuth{byCode: map[string]*google.Identity{
			"c": {Sub: "g-4", Email: "ana@uni.edu", EmailVerified: false},
		}}, "c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newOAuthLoginService(t, users, newFakeTokens(), tc.oauth)
			_, err := svc.LoginOAuth(context.Background(), dto.OAuthLoginRequest{Code: tc.code})
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("got %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestOAuthLoginDisabled(t *testing.T) {
	users := newFakeUsers()
	svc := newOAuthLoginService(t, users, newFakeTokens(), nil)

	_, err := svc.LoginOAuth(context.Background(), dto.OAuthLoginRequest{Code: "whatever"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}
}
