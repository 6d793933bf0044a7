// Package admin contiene DTOs para endpoints administrativos.
package admin

// AssignmentItem es una asignación docente-departamento del lote.
type AssignmentItem struct {
	FacultyID    string `json:"faculty_id"`
	DepartmentID string `json:"department_id"`
}

// BulkAssignmentsRequest es la carga masiva protegida por step-up: el MFAID
// debe referir una sesión de acción APPROVED del mismo usuario.
type BulkAssignmentsRequest struct {
	MFAID       string           `json:"mfa_id"`
	Assignments []AssignmentItem `json:"assignments"`
}

// BulkAssignmentsResponse resume el resultado del lote.
type BulkAssignmentsResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}
