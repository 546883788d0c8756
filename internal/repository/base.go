// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"folio/internal/database"

	"gorm.io/gorm"
)

// ErrSchemaRejected marks a write the connected schema could not accept,
// typically because a column is missing. Callers may retry with MinimalWrite.
var ErrSchemaRejected = errors.New("write rejected by schema")

// WriteTier selects the column set used for page writes.
type WriteTier int

const (
	// FullWrite writes every page column.
	FullWrite WriteTier = iota
	// MinimalWrite writes only the columns present since the first pages migration.
	MinimalWrite
)

func (t WriteTier) String() string {
	if t == MinimalWrite {
		return "minimal"
	}
	return "full"
}

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

func schemaRejected(err error) error {
	return fmt.Errorf("%w: %s", ErrSchemaRejected, err.Error())
}

func isSchemaError(err error) bool {
	return database.IsSchemaMissingError(err)
}
