package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpExtractsPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "lots_quantity_check",
		TableName:      "lots",
		Message:        "new row violates check constraint",
	}
	err := Wrap(CodeDependency, fmt.Errorf("update lot: %w", pgErr), "split lot")

	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Equal(t, "23514", dump.PGCode)
	assert.Equal(t, "lots_quantity_check", dump.PGConstraint)
	assert.Equal(t, "lots", dump.PGTable)
	require.Len(t, dump.Chain, 3)

	fields := dump.Fields()
	assert.Equal(t, "lots", fields["pg_table"])
	_, hasColumn := fields["pg_column"]
	assert.False(t, hasColumn)
}

func TestDumpExtractsPqFields(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "ux_bundle_items_bundle_lot"})
	assert.Equal(t, "23505", PGCode(err))
	assert.Equal(t, "ux_bundle_items_bundle_lot", Dump(err).PGConstraint)
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
