package repository

import (
	"context"
	"time"
)

// Assignment representa la asignación de un docente a un departamento.
type Assignment struct {
	ID           string
	FacultyID    string
	DepartmentID string
	AssignedBy   string
	CreatedAt    time.Time
}

// AssignmentInput contiene los datos de una asignación a crear.
type AssignmentInput struct {
	FacultyID    string
	DepartmentID string
}

// BulkResult resume el resultado de una carga masiva.
type BulkResult struct {
	Created int
	Skipped int // ya existían (clave natural duplicada)
}

// AssignmentRepository define operaciones sobre asignaciones docentes.
//
// CreateBulk es idempotente sobre la clave natural (faculty_id, department_id):
// reenviar el mismo lote no duplica filas, solo incrementa Skipped.
type AssignmentRepository interface {
	CreateBulk(ctx context.Context, assignedBy string, inputs []AssignmentInput) (*BulkResult, error)

	// ListByFaculty lista las asignaciones de un docente.
	ListByFaculty(ctx context.Context, facultyID string) ([]Assignment, error)
}
