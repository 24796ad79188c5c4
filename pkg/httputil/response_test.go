package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, w.Body.String())
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"not found", apperr.NotFound("invitation not found"), http.StatusNotFound, "not_found", "invitation not found"},
		{"conflict", apperr.Conflict("role still has members"), http.StatusConflict, "conflict", "role still has members"},
		{"forbidden", apperr.Forbidden("missing permission: role.create"), http.StatusForbidden, "forbidden", "missing permission: role.create"},
		{"unauthorized", apperr.Unauthorized("token expired"), http.StatusUnauthorized, "unauthorized", "token expired"},
		{"bad request", apperr.BadRequest("invitation has expired"), http.StatusBadRequest, "bad_request", "invitation has expired"},
		{"wrapped", errors.Join(errors.New("ctx"), apperr.Conflict("dup")), http.StatusConflict, "conflict", "dup"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/x", nil)

			WriteAppError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}
}

func TestWriteAppError_ValidationDetails(t *testing.T) {
	type req struct {
		Email string `json:"email" validate:"required,email"`
	}
	err := Validate(&req{Email: "nope"})
	require.Error(t, err)

	w := httptest.NewRecorder()
	WriteAppError(w, httptest.NewRequest(http.MethodPost, "/x", nil), err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "must be a valid email address", body.Details["Email"])
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteTooManyRequests(w, "slow down")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, "slow down", body.Error)
}

func TestWriteCreatedAndNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]int{"id": 1}))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
