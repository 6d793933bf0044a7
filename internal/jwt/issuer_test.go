package jwt_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/campuskey/campuskey/internal/jwt"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *jwt.Issuer {
	t.Helper()
	seed := bytes.Repeat([]byte{0x42}, 32)
	iss, err := jwt.NewIssuer("https://auth.campuskey.test", "campuskey-api", seed, ttl)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func TestIssueAndVerifyAccess(t *testing.T) {
	iss := newTestIssuer(t, 15*time.Minute)

	token, exp, err := iss.IssueAccess("u-1", "admin@uni.edu", "COLLEGE_ADMIN")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("exp demasiado cerca: %v", exp)
	}

	claims, err := iss.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "admin@uni.edu" || claims.Role != "COLLEGE_ADMIN" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	iss := newTestIssuer(t, 1*time.Nanosecond)

	token, _, err := iss.IssueAccess("u-1", "a@uni.edu", "FACULTY")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	_, err = iss.VerifyAccess(token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyAccessWrongKey(t *testing.T) {
	iss := newTestIssuer(t, time.Minute)

	other, err := jwt.NewIssuer("https://auth.campuskey.test", "campuskey-api", bytes.Repeat([]byte{0x7}, 32), time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, _, _ := other.IssueAccess("u-1", "a@uni.edu", "FACULTY")
	if _, err := iss.VerifyAccess(token); !errors.Is(err, jwt.ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyAccessGarbage(t *testing.T) {
	iss := newTestIssuer(t, time.Minute)
	if _, err := iss.VerifyAccess("not-a-jwt"); !errors.Is(err, jwt.ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestNewIssuerBadSeed(t *testing.T) {
	if _, err := jwt.NewIssuer("iss", "aud", []byte{1, 2, 3}, time.Minute); err == nil {
		t.Fatal("short seed accepted")
	}
}
