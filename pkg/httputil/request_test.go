package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
)

type createRequest struct {
	Name  string `json:"name" validate:"required,max=10"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"ops","email":"a@example.com"}`, false},
		{"empty body", ``, true},
		{"malformed", `{name}`, true},
		{"unknown field", `{"name":"ops","admin":true}`, true},
		{"missing required", `{"email":"a@example.com"}`, true},
		{"too long", `{"name":"abcdefghijk"}`, true},
		{"bad email", `{"name":"ops","email":"nope"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dest createRequest
			err := DecodeJSON(r, &dest)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ops", dest.Name)
		})
	}
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"abc", 0, true},
		{"0", 0, true},
		{"-3", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = mux.SetURLVars(r, map[string]string{"id": tt.value})
			got, err := ParsePathInt64(r, "id")
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=abc&status=", nil)

	token, err := RequireQuery(r, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = RequireQuery(r, "missing")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	assert.Equal(t, "pending", ParseQueryString(r, "status", "pending"))
}
