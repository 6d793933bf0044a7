// Package admin contiene los services administrativos protegidos por
// verificación step-up.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/admin"
	authsvc "github.com/campuskey/campuskey/internal/http/services/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// ActionBulkAssignments es el nombre de la acción protegida que la sesión
// step-up debe declarar para autorizar la carga masiva.
const ActionBulkAssignments = "bulk_assignments"

// maxBulkSize limita el tamaño del lote por request.
const maxBulkSize = 500

// AssignmentsService ejecuta la carga masiva de asignaciones docentes.
type AssignmentsService interface {
	BulkCreate(ctx context.Context, claims *jwtx.Claims, in dto.BulkAssignmentsRequest) (*dto.BulkAssignmentsResponse, error)
	ListByFaculty(ctx context.Context, facultyID string) ([]dto.AssignmentItem, error)
}

// AssignmentsDeps contiene las dependencias del servicio de asignaciones.
type AssignmentsDeps struct {
	Assignments repository.AssignmentRepository
	StepUp      authsvc.StepUpService
}

type assignmentsService struct {
	deps AssignmentsDeps
}

// NewAssignmentsService crea el servicio de asignaciones.
func NewAssignmentsService(deps AssignmentsDeps) AssignmentsService {
	return &assignmentsService{deps: deps}
}

// Errores de la carga masiva
var (
	ErrEmptyBatch     = fmt.Errorf("empty assignment batch")
	ErrBatchTooLarge  = fmt.Errorf("assignment batch too large")
	ErrInvalidBatch   = fmt.Errorf("assignment batch has invalid items")
	ErrMissingFaculty = fmt.Errorf("missing faculty id")
)

func (s *assignmentsService) BulkCreate(ctx context.Context, claims *jwtx.Claims, in dto.BulkAssignmentsRequest) (*dto.BulkAssignmentsResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("admin.assignments"),
		logger.Op("BulkCreate"),
		logger.UserID(claims.UserID),
	)

	// Paso 1: Validar el lote antes de gastar la sesión step-up: un lote
	// inválido no debe consumir la autorización.
	if len(in.Assignments) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(in.Assignments) > maxBulkSize {
		return nil, ErrBatchTooLarge
	}

	inputs := make([]repository.AssignmentInput, 0, len(in.Assignments))
	for _, item := range in.Assignments {
		fid := strings.TrimSpace(item.FacultyID)
		did := strings.TrimSpace(item.DepartmentID)
		if fid == "" || did == "" {
			return nil, ErrInvalidBatch
		}
		inputs = append(inputs, repository.AssignmentInput{FacultyID: fid, DepartmentID: did})
	}

	// Paso 2: Canjear la autorización step-up. Consume la sesión: un
	// reintento del mismo request necesita una verificación nueva.
	if err := s.deps.StepUp.Authorize(ctx, claims.UserID, ActionBulkAssignments, in.MFAID); err != nil {
		return nil, err
	}

	// Paso 3: Insertar el lote. La clave natural hace la operación
	// idempotente: las filas ya existentes se cuentan como Skipped.
	res, err := s.deps.Assignments.CreateBulk(ctx, claims.UserID, inputs)
	if err != nil {
		return nil, fmt.Errorf("create assignments: %w", err)
	}

	log.Info("bulk assignments created",
		logger.Int("created", res.Created),
		logger.Int("skipped", res.Skipped),
	)
	return &dto.BulkAssignmentsResponse{Created: res.Created, Skipped: res.Skipped}, nil
}

func (s *assignmentsService) ListByFaculty(ctx context.Context, facultyID string) ([]dto.AssignmentItem, error) {
	facultyID = strings.TrimSpace(facultyID)
	if facultyID == "" {
		return nil, ErrMissingFaculty
	}

	rows, err := s.deps.Assignments.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	items := make([]dto.AssignmentItem, 0, len(rows))
	for _, a := range rows {
		items = append(items, dto.AssignmentItem{FacultyID: a.FacultyID, DepartmentID: a.DepartmentID})
	}
	return items, nil
}
