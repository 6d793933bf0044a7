package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/domain/types"
	dto "github.com/campuskey/campuskey/internal/http/dto/admin"
	authdto "github.com/campuskey/campuskey/internal/http/dto/auth"
	authsvc "github.com/campuskey/campuskey/internal/http/services/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/mfa/push"
)

// fakeAssignments implementa repository.AssignmentRepository con la clave
// natural (faculty, department) en memoria.
type fakeAssignments struct {
	mu   sync.Mutex
	rows map[string]repository.Assignment
	seq  int
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{rows: map[string]repository.Assignment{}}
}

func (f *fakeAssignments) CreateBulk(_ context.Context, assignedBy string, inputs []repository.AssignmentInput) (*repository.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &repository.BulkResult{}
	for _, in := range inputs {
		key := in.FacultyID + "|" + in.DepartmentID
		if _, ok := f.rows[key]; ok {
			res.Skipped++
			continue
		}
		f.seq++
		f.rows[key] = repository.Assignment{
			ID:           fmt.Sprintf("a-%d", f.seq),
			FacultyID:    in.FacultyID,
			DepartmentID: in.DepartmentID,
			AssignedBy:   assignedBy,
			CreatedAt:    time.Now().UTC(),
		}
		res.Created++
	}
	return res, nil
}

func (f *fakeAssignments) ListByFaculty(_ context.Context, facultyID string) ([]repository.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Assignment
	for _, a := range f.rows {
		if a.FacultyID == facultyID {
			out = append(out, a)
		}
	}
	return out, nil
}

// stubUsers alcanza para el step-up: solo GetByID se usa en Initiate.
type stubUsers struct {
	user *repository.User
}

func (s *stubUsers) Create(context.Context, repository.CreateUserInput) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (s *stubUsers) GetByEmail(context.Context, string) (*repository.User, error) {
	return nil, repository.ErrNotFound
}
func (s *stubUsers) GetByID(_ context.Context, id string) (*repository.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *s.user
	return &cp, nil
}
func (s *stubUsers) UpdatePassword(context.Context, string, string) error {
	return fmt.Errorf("not implemented")
}

const testPasscode = "135791"

type harness struct {
	svc    AssignmentsService
	stepUp authsvc.StepUpService
	repo   *fakeAssignments
	claims *jwtx.Claims
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	user := &repository.User{
		ID:    "admin-1",
		Email: "admin@uni.edu",
		Role:  types.RoleCollegeAdmin,
	}
	broker := mfa.NewBroker(mfa.NewMemoryStore(), &push.Static{Passcode: testPasscode}, mfa.Config{})
	stepUp := authsvc.NewStepUpService(authsvc.StepUpDeps{Users: &stubUsers{user: user}, Broker: broker})
	repo := newFakeAssignments()
	return &harness{
		svc:    NewAssignmentsService(AssignmentsDeps{Assignments: repo, StepUp: stepUp}),
		stepUp: stepUp,
		repo:   repo,
		claims: &jwtx.Claims{UserID: user.ID, Email: user.Email, Role: string(user.Role)},
	}
}

// approvedSession crea y aprueba una sesión step-up para la carga masiva.
func (h *harness) approvedSession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	ini, err := h.stepUp.Initiate(ctx, h.claims, authdto.ActionMFAInitiateRequest{Action: ActionBulkAssignments})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := h.stepUp.VerifyPasscode(ctx, h.claims, authdto.ActionMFAVerifyRequest{MFAID: ini.MFAID, OTP: testPasscode}); err != nil {
		t.Fatalf("VerifyPasscode: %v", err)
	}
	return ini.MFAID
}

func TestBulkCreateRequiresApprovedStepUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batch := []dto.AssignmentItem{{FacultyID: "f1", DepartmentID: "d1"}}

	// Sin mfa_id no hay carga.
	_, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{Assignments: batch})
	if !errors.Is(err, authsvc.ErrStepUpRequired) {
		t.Fatalf("no mfa_id: got %v, want ErrStepUpRequired", err)
	}

	// Con sesión aprobada, la carga pasa.
	id := h.approvedSession(t)
	res, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{MFAID: id, Assignments: batch})
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if res.Created != 1 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestBulkCreateSessionIsSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.approvedSession(t)
	batch := []dto.AssignmentItem{{FacultyID: "f1", DepartmentID: "d1"}}

	if _, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{MFAID: id, Assignments: batch}); err != nil {
		t.Fatalf("first BulkCreate: %v", err)
	}

	// El mismo mfa_id no autoriza una segunda carga.
	_, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{MFAID: id, Assignments: batch})
	if !errors.Is(err, authsvc.ErrChallengeNotFound) {
		t.Fatalf("replay: got %v, want ErrChallengeNotFound", err)
	}
}

func TestBulkCreateIsIdempotentOnNaturalKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batch := []dto.AssignmentItem{
		{FacultyID: "f1", DepartmentID: "d1"},
		{FacultyID: "f1", DepartmentID: "d2"},
	}

	id := h.approvedSession(t)
	res, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{MFAID: id, Assignments: batch})
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("created = %d, want 2", res.Created)
	}

	// Reenviar el mismo lote (con una sesión nueva) no duplica filas.
	id = h.approvedSession(t)
	res, err = h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{
		MFAID:       id,
		Assignments: append(batch, dto.AssignmentItem{FacultyID: "f2", DepartmentID: "d1"}),
	})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if res.Created != 1 || res.Skipped != 2 {
		t.Fatalf("result = %+v, want created=1 skipped=2", res)
	}

	rows, err := h.svc.ListByFaculty(ctx, "f1")
	if err != nil {
		t.Fatalf("ListByFaculty: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("f1 assignments = %d, want 2", len(rows))
	}
}

func TestBulkCreateValidatesBatchBeforeSpendingSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.approvedSession(t)

	// Lote vacío: rechazado sin tocar la sesión.
	_, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{MFAID: id})
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty: got %v, want ErrEmptyBatch", err)
	}

	// Item inválido: también rechazado antes del canje.
	_, err = h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{
		MFAID:       id,
		Assignments: []dto.AssignmentItem{{FacultyID: "", DepartmentID: "d1"}},
	})
	if !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("invalid: got %v, want ErrInvalidBatch", err)
	}

	// La sesión sobrevivió a los rechazos y autoriza un lote válido.
	res, err := h.svc.BulkCreate(ctx, h.claims, dto.BulkAssignmentsRequest{
		MFAID:       id,
		Assignments: []dto.AssignmentItem{{FacultyID: "f1", DepartmentID: "d1"}},
	})
	if err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("created = %d, want 1", res.Created)
	}
}
