package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
)

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/lots/"+id.String(), nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("lotId", id.String())
	rc.URLParams.Add("bad", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "lotId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/lots", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, params.Limit)
	assert.Empty(t, params.Cursor)

	params, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/lots?limit=5&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 5, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/lots?limit=0", nil))
	assert.Error(t, err)
}

func TestParseQueryBool(t *testing.T) {
	v, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/lots", nil), "for_sale")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/lots?for_sale=true", nil), "for_sale")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/lots?for_sale=maybe", nil), "for_sale")
	assert.Error(t, err)
}

type decodeTarget struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBodyUsesJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	var dest decodeTarget
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["quantity"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":1,"extra":1}`))
	var dest decodeTarget
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Flabébé", SanitizeString("  Flabébé  ", 0))
	assert.Equal(t, "Flabé", SanitizeString("Flabébé", 5))
	assert.Equal(t, "Pika", SanitizeString("Pika chu", 5))
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/lots?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "between 1 and 100")

	req = httptest.NewRequest(http.MethodGet, "/lots", nil)
	got, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

type bundleTarget struct {
	Quantity int `json:"quantity" validate:"gt=0"`
	Items    []struct {
		CardsNeeded int `json:"cards_needed" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{name: "valid", body: `{"quantity":2,"items":[{"cards_needed":1}]}`},
		{name: "unknown field", body: `{"quantity":2,"items":[{"cards_needed":1}],"price":3}`, wantMsg: "invalid request body"},
		{name: "trailing object", body: `{"quantity":2,"items":[{"cards_needed":1}]}{"quantity":1}`, wantMsg: "single JSON object"},
		{name: "nested field", body: `{"quantity":2,"items":[{"cards_needed":0}]}`, wantField: "items[0].cards_needed"},
		{name: "empty items", body: `{"quantity":2,"items":[]}`, wantField: "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bundles", strings.NewReader(tt.body))
			var dest bundleTarget
			err := DecodeJSONBody(req, &dest)
			if tt.wantField == "" && tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			if tt.wantMsg != "" {
				assert.Contains(t, typed.Message(), tt.wantMsg)
			}
			if tt.wantField != "" {
				details, ok := typed.Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tt.wantField)
			}
		})
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	big := `{"quantity":1,"items":[{"cards_needed":1}],"pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/bundles", strings.NewReader(big))
	var dest bundleTarget
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	assert.Contains(t, pkgerrors.As(err).Message(), "too large")
}
