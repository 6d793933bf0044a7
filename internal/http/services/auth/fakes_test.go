package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/domain/types"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/mfa/push"
	"github.com/campuskey/campuskey/internal/security/password"
)

// testPasscode es el código fijo del proveedor estático de los tests.
const testPasscode = "246810"

// fakeUsers implementa repository.UserRepository sobre un map.
type fakeUsers struct {
	mu    sync.Mutex
	byID  map[string]*repository.User
	seq   int
	hooks struct {
		getByEmailErr error
	}
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*repository.User{}}
}

func (f *fakeUsers) add(email string, role types.Role, plain string) *repository.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	hash, err := password.Hash(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}, plain)
	if err != nil {
		panic(err)
	}
	u := &repository.User{
		ID:           fmt.Sprintf("u-%d", f.seq),
		Email:        strings.ToLower(email),
		Name:         "Test User",
		Role:         role,
		PasswordHash: hash,
		PushHandle:   strings.ToLower(email),
		CreatedAt:    time.Now().UTC(),
	}
	f.byID[u.ID] = u
	return u
}

func (f *fakeUsers) Create(_ context.Context, _ repository.CreateUserInput) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks.getByEmailErr != nil {
		return nil, f.hooks.getByEmailErr
	}
	for _, u := range f.byID {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChanged = true
	now := time.Now().UTC()
	u.PasswordChangedAt = &now
	return nil
}

// fakeTokens implementa repository.TokenRepository con la misma semántica
// de rotación single-use que el repo real.
type fakeTokens struct {
	mu     sync.Mutex
	byHash map[string]*repository.RefreshToken
	seq    int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byHash: map[string]*repository.RefreshToken{}}
}

func (f *fakeTokens) Create(_ context.Context, in repository.CreateRefreshTokenInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := time.Now().UTC()
	t := &repository.RefreshToken{
		ID:          fmt.Sprintf("rt-%d", f.seq),
		UserID:      in.UserID,
		TokenHash:   in.TokenHash,
		IssuedAt:    now,
		ExpiresAt:   now.Add(in.TTL),
		RotatedFrom: in.RotatedFrom,
	}
	f.byHash[in.TokenHash] = t
	return t.ID, nil
}

func (f *fakeTokens) Rotate(_ context.Context, hash string) (*repository.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return nil, repository.ErrTokenRotated
	}
	if time.Now().UTC().After(t.ExpiresAt) {
		return nil, repository.ErrTokenExpired
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) GetByHash(_ context.Context, hash string) (*repository.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) Revoke(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.byHash[hash]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (f *fakeTokens) RevokeAllByUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, t := range f.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

// activeTokens cuenta los refresh tokens vigentes del usuario.
func (f *fakeTokens) activeTokens(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

// fakeMail captura los correos enviados y extrae el último OTP.
type fakeMail struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeMail) Send(_, _, _, textBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("smtp down")
	}
	f.sent = append(f.sent, textBody)
	return nil
}

var otpRe = regexp.MustCompile(`\b\d{6}\b`)

func (f *fakeMail) lastOTP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return otpRe.FindString(f.sent[len(f.sent)-1])
}

func (f *fakeMail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// newTestBroker arma un broker sobre el store en memoria con el proveedor
// estático (push siempre degrada a passcode).
func newTestBroker() *mfa.Broker {
	return mfa.NewBroker(mfa.NewMemoryStore(), &push.Static{Passcode: testPasscode}, mfa.Config{
		MaxAttempts: 3,
	})
}
