package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
)

// startAdminLogin inicia un login con MFA y retorna el mfa_id.
func startAdminLogin(t *testing.T, svcs Services) string {
	t.Helper()
	res, err := svcs.Login.Login(context.Background(), dto.LoginRequest{
		Email:    "admin@uni.edu",
		Password: "secret-pass",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.MFARequired {
		t.Fatal("expected MFA challenge")
	}
	return res.MFAID
}

func TestMFAVerifyPasscodeIssuesTokens(t *testing.T) {
	users := newFakeUsers()
	u := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	toks := newFakeTokens()
	svcs := newTestServices(t, users, toks, nil)
	id := startAdminLogin(t, svcs)

	res, err := svcs.MFA.Verify(context.Background(), dto.MFAVerifyRequest{MFAID: id, OTP: testPasscode})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.MFAVerified || res.TokenPair == nil || res.AccessToken == "" {
		t.Fatalf("expected verified with tokens, got %+v", res)
	}
	if res.User == nil || res.User.ID != u.ID {
		t.Fatalf("unexpected user payload: %+v", res.User)
	}
	if got := toks.activeTokens(u.ID); got != 1 {
		t.Fatalf("active refresh tokens = %d, want 1", got)
	}
}

func TestMFAVerifySessionIsSingleUse(t *testing.T) {
	users := newFakeUsers()
	users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	id := startAdminLogin(t, svcs)
	ctx := context.Background()

	if _, err := svcs.MFA.Verify(ctx, dto.MFAVerifyRequest{MFAID: id, OTP: testPasscode}); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	// El canje destruyó la sesión: repetir el mismo mfa_id no emite nada.
	_, err := svcs.MFA.Verify(ctx, dto.MFAVerifyRequest{MFAID: id, OTP: testPasscode})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("second Verify: got %v, want ErrChallengeNotFound", err)
	}
}

func TestMFAVerifyPollWhilePending(t *testing.T) {
	users := newFakeUsers()
	users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	id := startAdminLogin(t, svcs)

	res, err := svcs.MFA.Verify(context.Background(), dto.MFAVerifyRequest{MFAID: id})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.MFAVerified || res.TokenPair != nil {
		t.Fatalf("pending session must not issue tokens: %+v", res)
	}
}

func TestMFAVerifyLockoutAfterBadPasscodes(t *testing.T) {
	users := newFakeUsers()
	users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	id := startAdminLogin(t, svcs)
	ctx := context.Background()

	// El broker de test bloquea al tercer intento fallido.
	for i := 0; i < 2; i++ {
		_, err := svcs.MFA.Verify(ctx, dto.MFAVerifyRequest{MFAID: id, OTP: "000000"})
		if !errors.Is(err, ErrPasscodeInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrPasscodeInvalid", i+1, err)
		}
	}
	_, err := svcs.MFA.Verify(ctx, dto.MFAVerifyRequest{MFAID: id, OTP: "000000"})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("locking attempt: got %v, want ErrTooManyAttempts", err)
	}

	// Bloqueada, ni el código correcto la revive.
	_, err = svcs.MFA.Verify(ctx, dto.MFAVerifyRequest{MFAID: id, OTP: testPasscode})
	if !errors.Is(err, ErrChallengeDenied) {
		t.Fatalf("after lockout: got %v, want ErrChallengeDenied", err)
	}
}

func TestMFAVerifyUnknownSession(t *testing.T) {
	users := newFakeUsers()
	users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)

	_, err := svcs.MFA.Verify(context.Background(), dto.MFAVerifyRequest{MFAID: "no-existe"})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("got %v, want ErrChallengeNotFound", err)
	}
}
