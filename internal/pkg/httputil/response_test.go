package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAndErrors(t *testing.T) {
	w := httptest.NewRecorder()
	Created(w, map[string]int{"id": 4})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":4}`, w.Body.String())

	w = httptest.NewRecorder()
	InternalError(w, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = httptest.NewRecorder()
	ErrorCode(w, http.StatusConflict, "batch_not_failed", "only failed batches can be resubmitted")
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "batch_not_failed", body.Code)
}

func TestDecode(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Leads"}`))
	assert.True(t, Decode(w, r, &dst))
	assert.Equal(t, "Leads", dst.Name)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nme":"Leads"}`))
	assert.False(t, Decode(w, r, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("a", maxJSONBody)+`"}`))
	assert.False(t, Decode(w, r, &dst))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query                 string
		page, perPage, offset int
	}{
		{"", 1, 50, 0},
		{"page=3&per_page=20", 3, 20, 40},
		{"page=-1&per_page=abc", 1, 50, 0},
		{"per_page=100000", 1, 500, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		page, perPage, offset := Pagination(r, 50, 500)
		assert.Equal(t, tt.page, page, tt.query)
		assert.Equal(t, tt.perPage, perPage, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
	}
}

func TestNewPageNeverNull(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, NewPage[int](nil, 0, 1, 50))
	assert.JSONEq(t, `{"data":[],"total":0,"page":1,"per_page":50}`, w.Body.String())
}
