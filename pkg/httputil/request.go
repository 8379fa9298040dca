package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes the request body into dest, writing a 400
// response and returning false when the body does not parse.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteValidationError(w, err.Error())
		return false
	}
	return true
}

// ParsePathInt64OrError reads an int64 path variable, writing a 400
// response and returning false when it is missing or not an integer.
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	str := mux.Vars(r)[key]
	if str == "" {
		WriteValidationError(w, fmt.Sprintf("missing path parameter: %s", key))
		return 0, false
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		WriteValidationError(w, fmt.Sprintf("invalid integer for %s: %s", key, str))
		return 0, false
	}
	return val, true
}

// ParsePathStringOrError reads a string path variable, writing a 400
// response and returning false when it is empty.
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	str := mux.Vars(r)[key]
	if str == "" {
		WriteValidationError(w, fmt.Sprintf("missing path parameter: %s", key))
		return "", false
	}
	return str, true
}

// ParseQueryInt reads an integer query parameter, returning defaultVal
// when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}
