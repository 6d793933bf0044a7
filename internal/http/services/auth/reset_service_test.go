package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/security/password"
)

func TestResetHappyPath(t *testing.T) {
	users := newFakeUsers()
	u := users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	toks := newFakeTokens()
	mail := &fakeMail{}
	svcs := newTestServices(t, users, toks, mail)
	ctx := context.Background()

	// La víctima tenía una sesión abierta que debe caer con el reset.
	if _, err := svcs.Login.Login(ctx, dto.LoginRequest{Email: "ana@uni.edu", Password: "old-pass-123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	res, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "Ana@Uni.edu"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.OTPSent {
		t.Fatal("expected otp_sent")
	}
	code := mail.lastOTP()
	if len(code) != 6 {
		t.Fatalf("otp in mail = %q", code)
	}

	ver, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: code})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ver.Verified || ver.ResetID == "" {
		t.Fatalf("expected verified with reset_id, got %+v", ver)
	}

	fin, err := svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         ver.ResetID,
		NewPassword:     "new-pass-456",
		ConfirmPassword: "new-pass-456",
	})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !fin.Reset {
		t.Fatal("expected reset=true")
	}

	got, _ := users.GetByID(ctx, u.ID)
	if !password.Verify("new-pass-456", got.PasswordHash) {
		t.Fatal("new password does not verify")
	}
	if password.Verify("old-pass-123", got.PasswordHash) {
		t.Fatal("old password still verifies")
	}
	if n := toks.activeTokens(u.ID); n != 0 {
		t.Fatalf("active refresh tokens after reset = %d, want 0", n)
	}

	// La sesión de reset se consumió: repetir el paso final no funciona.
	_, err = svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         ver.ResetID,
		NewPassword:     "another-789",
		ConfirmPassword: "another-789",
	})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("replayed reset: got %v, want ErrChallengeNotFound", err)
	}
}

func TestResetRequestDoesNotLeakAccounts(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	known, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"})
	if err != nil {
		t.Fatalf("known: %v", err)
	}
	unknown, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "nadie@uni.edu"})
	if err != nil {
		t.Fatalf("unknown: %v", err)
	}
	if *known != *unknown {
		t.Fatalf("responses differ: %+v vs %+v", known, unknown)
	}
	if mail.count() != 1 {
		t.Fatalf("mails sent = %d, want 1", mail.count())
	}
}

func TestResetNewRequestInvalidatesPreviousOTP(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("first Request: %v", err)
	}
	first := mail.lastOTP()

	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("second Request: %v", err)
	}
	second := mail.lastOTP()

	if first == second {
		t.Skip("collision between generated codes")
	}
	_, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: first})
	if !errors.Is(err, ErrPasscodeInvalid) {
		t.Fatalf("stale otp: got %v, want ErrPasscodeInvalid", err)
	}
	if _, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: second}); err != nil {
		t.Fatalf("current otp: %v", err)
	}
}

func TestResetResendLimit(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	// MaxResends=3 en el arnés: la primera solicitud más dos reenvíos.
	for i := 0; i < 3; i++ {
		if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"})
	if !errors.Is(err, ErrTooManyResends) {
		t.Fatalf("got %v, want ErrTooManyResends", err)
	}
}

func TestResetResendWindowResetsCounter(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svc := NewResetService(ResetDeps{
		Users:        users,
		Tokens:       newFakeTokens(),
		Store:        mfa.NewMemoryStore(),
		Mail:         mail,
		MaxResends:   2,
		ResendWindow: 50 * time.Millisecond,
	})
	ctx := context.Background()

	// La primera solicitud más un reenvío agotan la ventana.
	for i := 0; i < 2; i++ {
		if _, err := svc.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := svc.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"})
	if !errors.Is(err, ErrTooManyResends) {
		t.Fatalf("inside window: got %v, want ErrTooManyResends", err)
	}

	// Cerrada la ventana el contador arranca de cero aunque la sesión del
	// intento anterior siga PENDING.
	time.Sleep(60 * time.Millisecond)
	if _, err := svc.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("after window: %v", err)
	}
	if mail.count() != 3 {
		t.Fatalf("mails sent = %d, want 3", mail.count())
	}
}

func TestResetOTPLockout(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := mail.lastOTP()
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	// MaxAttempts default = 5.
	for i := 0; i < 4; i++ {
		_, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: wrong})
		if !errors.Is(err, ErrPasscodeInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrPasscodeInvalid", i+1, err)
		}
	}
	_, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: wrong})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("locking attempt: got %v, want ErrTooManyAttempts", err)
	}

	// Bloqueada, el código bueno ya no sirve.
	_, err = svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "ana@uni.edu", OTP: code})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("after lockout: got %v, want ErrTooManyAttempts", err)
	}
}

func TestResetRejectsForeignResetID(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	users.add("eva@uni.edu", types.RoleStudent, "eva-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	// Eva verifica su propia sesión y obtiene un reset_id legítimo.
	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "eva@uni.edu"}); err != nil {
		t.Fatalf("eva Request: %v", err)
	}
	evaVer, err := svcs.Reset.Verify(ctx, dto.ForgotVerifyRequest{Email: "eva@uni.edu", OTP: mail.lastOTP()})
	if err != nil {
		t.Fatalf("eva Verify: %v", err)
	}

	// Ana también tiene una sesión pendiente.
	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("ana Request: %v", err)
	}

	// El reset_id de Eva no autoriza cambiar la contraseña de Ana.
	_, err = svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         evaVer.ResetID,
		NewPassword:     "hacked-pass-1",
		ConfirmPassword: "hacked-pass-1",
	})
	if !errors.Is(err, ErrResetMismatch) {
		t.Fatalf("got %v, want ErrResetMismatch", err)
	}
}

func TestResetRequiresVerifiedSession(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	if _, err := svcs.Reset.Request(ctx, dto.ForgotPasswordRequest{Email: "ana@uni.edu"}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Sin pasar por Verify no hay reset_id válido conocido, y aunque se
	// adivinara la referencia, la sesión sigue PENDING.
	_, err := svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         "adivinada",
		NewPassword:     "new-pass-456",
		ConfirmPassword: "new-pass-456",
	})
	if !errors.Is(err, ErrResetMismatch) {
		t.Fatalf("got %v, want ErrResetMismatch", err)
	}
}

func TestResetPasswordPolicy(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "old-pass-123")
	mail := &fakeMail{}
	svcs := newTestServices(t, users, newFakeTokens(), mail)
	ctx := context.Background()

	_, err := svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         "x",
		NewPassword:     "abc",
		ConfirmPassword: "xyz",
	})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("mismatch: got %v, want ErrPasswordMismatch", err)
	}

	_, err = svcs.Reset.Reset(ctx, dto.ForgotResetRequest{
		Email:           "ana@uni.edu",
		ResetID:         "x",
		NewPassword:     "corta",
		ConfirmPassword: "corta",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak: got %v, want ErrWeakPassword", err)
	}
}
