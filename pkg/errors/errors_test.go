package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		expose    bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeInsufficientQuantity, http.StatusBadRequest, false, true},
		{CodeNotFound, http.StatusNotFound, false, true},
		{CodeConflict, http.StatusConflict, false, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeInternal, http.StatusInternalServerError, true, false},
		{CodeDependency, http.StatusServiceUnavailable, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.expose, meta.ExposeMessage)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
	assert.False(t, MetadataFor(CodeNotFound).DetailsAllowed)
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestConstructorsAndChain(t *testing.T) {
	e := Newf(CodeValidation, "quantity must be at least %d", 1)
	assert.Equal(t, CodeValidation, e.Code())
	assert.Equal(t, "quantity must be at least 1", e.Message())
	assert.Nil(t, e.Details())
	assert.Equal(t, "VALIDATION_ERROR: quantity must be at least 1", e.Error())

	e.WithDetails(map[string]any{"field": "quantity"})
	assert.NotNil(t, e.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "merge lots")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "CONFLICT: merge lots: boom", wrapped.Error())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestAsFindsWrappedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeStateConflict, "lot is sold"))
	require.NotNil(t, As(err))
	assert.Equal(t, CodeStateConflict, As(err).Code())
	assert.True(t, IsCode(err, CodeStateConflict))
	assert.False(t, IsCode(err, CodeConflict))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(New(CodeInsufficientQuantity, "short")))
	assert.True(t, Retryable(Wrap(CodeDependency, stdErrors.New("timeout"), "load")))
	assert.True(t, Retryable(stdErrors.New("untyped")))
}

func TestPersistClassifiesStoreFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"missing row", fmt.Errorf("find lot: %w", gorm.ErrRecordNotFound), CodeNotFound},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "ux_acquisitions_purchase_sku"}, CodeConflict},
		{"foreign key via pq", &pq.Error{Code: "23503", Constraint: "bundle_items_lot_id_fkey"}, CodeConflict},
		{"lot quantity floor", &pgconn.PgError{Code: "23514", ConstraintName: "lots_quantity_check"}, CodeInsufficientQuantity},
		{"bundle quantity floor", &pgconn.PgError{Code: "23514", ConstraintName: "bundles_quantity_check"}, CodeInsufficientQuantity},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "lots_condition_check"}, CodeValidation},
		{"serialization", &pgconn.PgError{Code: "40001"}, CodeDependency},
		{"connection", stdErrors.New("connection reset by peer"), CodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := As(Persist(tt.err, "save"))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestPersistKeepsTypedErrors(t *testing.T) {
	typed := New(CodeNotFound, "lot not found")
	wrapped := fmt.Errorf("tx: %w", typed)
	assert.Same(t, wrapped, Persist(wrapped, "load lot"))
	assert.Same(t, typed, As(Persist(wrapped, "load lot")))
	assert.Nil(t, Persist(nil, "noop"))
}
