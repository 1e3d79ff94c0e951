package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkspaceOrDefault(t *testing.T) {
	assert.Equal(t, "default", workspaceOrDefault(""))
	assert.Equal(t, "ws1", workspaceOrDefault("ws1"))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 25, clampInt(0, 25, 100))
	assert.Equal(t, 100, clampInt(500, 25, 100))
	assert.Equal(t, 10, clampInt(10, 25, 100))
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 200, map[string]bool{"ok": true})

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
