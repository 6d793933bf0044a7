// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente. La implementación concreta vive en
// internal/store/pg (PostgreSQL via pgx).
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
//   - Las operaciones sensibles a carreras (Rotate, CreateBulk) documentan
//     su garantía de atomicidad en la interfaz, no en el driver
package repository
