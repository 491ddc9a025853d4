package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONResponse decodes the response body into v.
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	require.NoError(t, json.Unmarshal(body, v), "failed to unmarshal %d response: %s", resp.StatusCode, string(body))
}

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// AssertErrorResponse checks the status and error kind, and returns the
// decoded body so callers can inspect Field or Message.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedKind string) *ErrorBody {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code: %s", string(body))

	var errBody ErrorBody
	require.NoError(t, json.Unmarshal(body, &errBody), "error response is not JSON: %s", string(body))
	assert.Equal(t, expectedKind, errBody.Error, "error kind mismatch: %s", errBody.Message)
	return &errBody
}
