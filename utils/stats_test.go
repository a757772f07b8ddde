package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetStats(t *testing.T) {
	s := GetStats()
	assert.Greater(t, s.Goroutines, 0)
	assert.Greater(t, s.CPUs, 0)
	assert.NotEmpty(t, s.GoVersion)
}

func TestStatsServeHTTP(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	(*Stats)(nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var decoded Stats
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	assert.Greater(t, decoded.CPUs, 0)
}
