package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskey/campuskey/internal/domain/repository"
)

// AssignmentRepo implementa repository.AssignmentRepository.
type AssignmentRepo struct{ pool *pgxpool.Pool }

var _ repository.AssignmentRepository = (*AssignmentRepo)(nil)

// CreateBulk inserta el lote dentro de una transacción. La idempotencia la
// da el UNIQUE(faculty_id, department_id) + ON CONFLICT DO NOTHING: reenviar
// el mismo lote (doble click, doble poll de step-up) no duplica filas.
func (r *AssignmentRepo) CreateBulk(ctx context.Context, assignedBy string, inputs []repository.AssignmentInput) (*repository.BulkResult, error) {
	const q = `
		INSERT INTO faculty_assignments (faculty_id, department_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (faculty_id, department_id) DO NOTHING`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	res := &repository.BulkResult{}
	for _, in := range inputs {
		ct, err := tx.Exec(ctx, q, in.FacultyID, in.DepartmentID, assignedBy)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			res.Skipped++
		} else {
			res.Created++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *AssignmentRepo) ListByFaculty(ctx context.Context, facultyID string) ([]repository.Assignment, error) {
	const q = `
		SELECT id, faculty_id, department_id, assigned_by, created_at
		FROM faculty_assignments
		WHERE faculty_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, facultyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Assignment
	for rows.Next() {
		var a repository.Assignment
		if err := rows.Scan(&a.ID, &a.FacultyID, &a.DepartmentID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
