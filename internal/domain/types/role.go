package types

import "strings"

// Role es el rol institucional de un usuario.
type Role string

const (
	RoleCollegeAdmin        Role = "COLLEGE_ADMIN"
	RoleAcademicCoordinator Role = "ACADEMIC_COORDINATOR"
	RoleFaculty             Role = "FACULTY"
	RoleStudent             Role = "STUDENT"
)

// ParseRole normaliza un string a Role. Retorna ok=false si no es un rol conocido.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleCollegeAdmin:
		return RoleCollegeAdmin, true
	case RoleAcademicCoordinator:
		return RoleAcademicCoordinator, true
	case RoleFaculty:
		return RoleFaculty, true
	case RoleStudent:
		return RoleStudent, true
	default:
		return "", false
	}
}

// String implementa fmt.Stringer.
func (r Role) String() string { return string(r) }

// RequiresMFA indica si el login de este rol exige segundo factor.
// Solo los roles administrativos pasan por MFA; faculty y student
// entran con credenciales solamente.
func (r Role) RequiresMFA() bool {
	return r == RoleCollegeAdmin || r == RoleAcademicCoordinator
}

// CanManageAssignments indica si el rol puede crear asignaciones de docentes.
func (r Role) CanManageAssignments() bool {
	return r == RoleCollegeAdmin || r == RoleAcademicCoordinator
}
