package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"asset": "usdc"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "empty body", body: ``, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/plans", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "usdc", dest["asset"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/plans", bytes.NewBufferString(`{invalid}`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/plans", bytes.NewBufferString(`{"asset": "dai"}`))

	ok = ParseJSONOrError(w, req, &dest)

	assert.True(t, ok)
	assert.Equal(t, "dai", dest["asset"])
}

func TestParsePathInt64OrError(t *testing.T) {
	tests := []struct {
		name      string
		pathValue string
		expectVal int64
		expectOK  bool
	}{
		{name: "valid", pathValue: "123", expectVal: 123, expectOK: true},
		{name: "max int64", pathValue: "9223372036854775807", expectVal: 9223372036854775807, expectOK: true},
		{name: "not an integer", pathValue: "abc"},
		{name: "empty", pathValue: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/plans/"+tt.pathValue, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.pathValue})

			val, ok := ParsePathInt64OrError(w, req, "id")

			assert.Equal(t, tt.expectOK, ok)
			assert.Equal(t, tt.expectVal, val)
			if !tt.expectOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestParsePathStringOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/intents/alice", nil)
	req = mux.SetURLVars(req, map[string]string{"subscriber": "alice"})

	val, ok := ParsePathStringOrError(w, req, "subscriber")

	assert.True(t, ok)
	assert.Equal(t, "alice", val)

	w = httptest.NewRecorder()
	req = mux.SetURLVars(req, map[string]string{})

	_, ok = ParsePathStringOrError(w, req, "subscriber")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/gas/recent?n=5", nil)

	val, err := ParseQueryInt(req, "n", 20)

	assert.NoError(t, err)
	assert.Equal(t, 5, val)
}

func TestParseQueryInt_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/gas/recent", nil)

	val, err := ParseQueryInt(req, "n", 20)

	assert.NoError(t, err)
	assert.Equal(t, 20, val)
}

func TestParseQueryInt_Invalid(t *testing.T) {
	req := httptest.NewRequest("GET", "/gas/recent?n=bogus", nil)

	_, err := ParseQueryInt(req, "n", 20)

	assert.Error(t, err)
}
