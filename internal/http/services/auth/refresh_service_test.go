package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
)

// loginStudent entra con un rol sin MFA y retorna el par emitido.
func loginStudent(t *testing.T, svcs Services) *dto.LoginResponse {
	t.Helper()
	res, err := svcs.Login.Login(context.Background(), dto.LoginRequest{
		Email:    "ana@uni.edu",
		Password: "secret-pass",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

func TestRefreshRotatesToken(t *testing.T) {
	users := newFakeUsers()
	u := users.add("ana@uni.edu", types.RoleStudent, "secret-pass")
	toks := newFakeTokens()
	svcs := newTestServices(t, users, toks, nil)
	first := loginStudent(t, svcs)
	ctx := context.Background()

	res, err := svcs.Refresh.Refresh(ctx, dto.RefreshRequest{RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken == "" || res.RefreshToken == first.RefreshToken {
		t.Fatal("expected a fresh refresh token")
	}
	if res.AccessToken == "" {
		t.Fatal("expected a fresh access token")
	}
	// El viejo quedó revocado: un solo token activo por cadena.
	if got := toks.activeTokens(u.ID); got != 1 {
		t.Fatalf("active refresh tokens = %d, want 1", got)
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	users := newFakeUsers()
	u := users.add("ana@uni.edu", types.RoleStudent, "secret-pass")
	toks := newFakeTokens()
	svcs := newTestServices(t, users, toks, nil)
	first := loginStudent(t, svcs)
	ctx := context.Background()

	second, err := svcs.Refresh.Refresh(ctx, dto.RefreshRequest{RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Reusar el token ya rotado es señal de robo: cae toda la familia.
	_, err = svcs.Refresh.Refresh(ctx, dto.RefreshRequest{RefreshToken: first.RefreshToken})
	if !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("reuse: got %v, want ErrRefreshReused", err)
	}
	if got := toks.activeTokens(u.ID); got != 0 {
		t.Fatalf("active refresh tokens after reuse = %d, want 0", got)
	}

	// El token legítimo de la víctima también quedó fuera.
	_, err = svcs.Refresh.Refresh(ctx, dto.RefreshRequest{RefreshToken: second.RefreshToken})
	if !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("victim token: got %v, want ErrRefreshReused", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	users := newFakeUsers()
	users.add("ana@uni.edu", types.RoleStudent, "secret-pass")
	svcs := newTestServices(t, users, newFakeTokens(), nil)

	_, err := svcs.Refresh.Refresh(context.Background(), dto.RefreshRequest{RefreshToken: "jamas-emitido"})
	if !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("got %v, want ErrRefreshNotFound", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	users := newFakeUsers()
	u := users.add("ana@uni.edu", types.RoleStudent, "secret-pass")
	toks := newFakeTokens()
	svcs := newTestServices(t, users, toks, nil)
	first := loginStudent(t, svcs)
	ctx := context.Background()

	if err := svcs.Refresh.Logout(ctx, dto.LogoutRequest{RefreshToken: first.RefreshToken}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got := toks.activeTokens(u.ID); got != 0 {
		t.Fatalf("active refresh tokens = %d, want 0", got)
	}

	// Repetir el logout, o hacerlo con un token desconocido, no es error.
	if err := svcs.Refresh.Logout(ctx, dto.LogoutRequest{RefreshToken: first.RefreshToken}); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svcs.Refresh.Logout(ctx, dto.LogoutRequest{RefreshToken: "jamas-emitido"}); err != nil {
		t.Fatalf("unknown Logout: %v", err)
	}

	// Tras el logout, el token revocado no rota.
	_, err := svcs.Refresh.Refresh(ctx, dto.RefreshRequest{RefreshToken: first.RefreshToken})
	if !errors.Is(err, ErrRefreshReused) {
		t.Fatalf("refresh after logout: got %v, want ErrRefreshReused", err)
	}
}
