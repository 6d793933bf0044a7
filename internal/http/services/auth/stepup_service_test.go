package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
)

const testAction = "bulk_assignments"

func claimsFor(u string) *jwtx.Claims {
	return &jwtx.Claims{UserID: u, Email: "admin@uni.edu", Role: string(types.RoleCollegeAdmin)}
}

// approveStepUp inicia y aprueba por passcode una sesión de acción.
func approveStepUp(t *testing.T, svcs Services, claims *jwtx.Claims) string {
	t.Helper()
	ctx := context.Background()
	ini, err := svcs.StepUp.Initiate(ctx, claims, dto.ActionMFAInitiateRequest{Action: testAction})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	chk, err := svcs.StepUp.VerifyPasscode(ctx, claims, dto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode})
	if err != nil {
		t.Fatalf("VerifyPasscode: %v", err)
	}
	if !chk.MFAVerified {
		t.Fatal("expected verified session")
	}
	return ini.MFAID
}

func TestStepUpAuthorizeConsumesSession(t *testing.T) {
	users := newFakeUsers()
	u := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	ctx := context.Background()
	cl := claimsFor(u.ID)

	id := approveStepUp(t, svcs, cl)

	if err := svcs.StepUp.Authorize(ctx, u.ID, testAction, id); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	// La autorización es de un solo uso.
	err := svcs.StepUp.Authorize(ctx, u.ID, testAction, id)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("replay: got %v, want ErrChallengeNotFound", err)
	}
}

func TestStepUpAuthorizeRejectsPendingSession(t *testing.T) {
	users := newFakeUsers()
	u := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	ctx := context.Background()

	ini, err := svcs.StepUp.Initiate(ctx, claimsFor(u.ID), dto.ActionMFAInitiateRequest{Action: testAction})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	err = svcs.StepUp.Authorize(ctx, u.ID, testAction, ini.MFAID)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("got %v, want ErrStepUpRequired", err)
	}

	// El intento fallido no consumió la sesión: aún se puede aprobar.
	chk, err := svcs.StepUp.VerifyPasscode(ctx, claimsFor(u.ID), dto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode})
	if err != nil || !chk.MFAVerified {
		t.Fatalf("VerifyPasscode after failed authorize: %v %+v", err, chk)
	}
}

func TestStepUpAuthorizeRejectsForeignSession(t *testing.T) {
	users := newFakeUsers()
	owner := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	other := users.add("coord@uni.edu", types.RoleAcademicCoordinator, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	ctx := context.Background()

	id := approveStepUp(t, svcs, claimsFor(owner.ID))

	// Sesión de otro usuario: se responde como inexistente.
	err := svcs.StepUp.Authorize(ctx, other.ID, testAction, id)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign user: got %v, want ErrChallengeNotFound", err)
	}

	// Misma sesión pero para otra acción: tampoco.
	err = svcs.StepUp.Authorize(ctx, owner.ID, "delete_semester", id)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign action: got %v, want ErrChallengeNotFound", err)
	}

	// Los rechazos no consumieron la sesión del dueño.
	if err := svcs.StepUp.Authorize(ctx, owner.ID, testAction, id); err != nil {
		t.Fatalf("legitimate authorize: %v", err)
	}
}

func TestStepUpCheckReportsState(t *testing.T) {
	users := newFakeUsers()
	u := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	ctx := context.Background()

	cl := claimsFor(u.ID)
	ini, err := svcs.StepUp.Initiate(ctx, cl, dto.ActionMFAInitiateRequest{Action: testAction})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	chk, err := svcs.StepUp.Check(ctx, cl, ini.MFAID)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if chk.MFAVerified || chk.Expired {
		t.Fatalf("pending session: %+v", chk)
	}

	if _, err := svcs.StepUp.VerifyPasscode(ctx, cl, dto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode}); err != nil {
		t.Fatalf("VerifyPasscode: %v", err)
	}
	chk, err = svcs.StepUp.Check(ctx, cl, ini.MFAID)
	if err != nil {
		t.Fatalf("Check approved: %v", err)
	}
	if !chk.MFAVerified {
		t.Fatalf("approved session: %+v", chk)
	}

	_, err = svcs.StepUp.Check(ctx, cl, "no-existe")
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("unknown session: got %v, want ErrChallengeNotFound", err)
	}
}

func TestStepUpCheckAndVerifyRejectForeignCaller(t *testing.T) {
	users := newFakeUsers()
	owner := users.add("admin@uni.edu", types.RoleCollegeAdmin, "secret-pass")
	other := users.add("coord@uni.edu", types.RoleAcademicCoordinator, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)
	ctx := context.Background()

	ini, err := svcs.StepUp.Initiate(ctx, claimsFor(owner.ID), dto.ActionMFAInitiateRequest{Action: testAction})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Conocer el mfa_id no alcanza: otro usuario no puede ni consultar el
	// estado de la sesión.
	_, err = svcs.StepUp.Check(ctx, claimsFor(other.ID), ini.MFAID)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign check: got %v, want ErrChallengeNotFound", err)
	}

	// Tampoco verificar, ni siquiera con el código correcto.
	_, err = svcs.StepUp.VerifyPasscode(ctx, claimsFor(other.ID), dto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign verify: got %v, want ErrChallengeNotFound", err)
	}

	// El rechazo no tocó la sesión del dueño: sigue PENDING y se aprueba.
	chk, err := svcs.StepUp.Check(ctx, claimsFor(owner.ID), ini.MFAID)
	if err != nil || chk.MFAVerified || chk.Expired {
		t.Fatalf("owner check after foreign attempts: %v %+v", err, chk)
	}
	chk, err = svcs.StepUp.VerifyPasscode(ctx, claimsFor(owner.ID), dto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode})
	if err != nil || !chk.MFAVerified {
		t.Fatalf("owner verify: %v %+v", err, chk)
	}
}
