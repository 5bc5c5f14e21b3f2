package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwatts/device-verification/internal/api/http/dto"
)

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	r := gin.New()
	r.GET("/health", h.Check)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.HealthResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestInfo(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	r := gin.New()
	r.GET("/info", h.Info)

	req, _ := http.NewRequest("GET", "/info", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.InfoResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "device-verification", resp.Service)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "365 days", resp.TokenValidity["residential_initial"])
	assert.Equal(t, "90 days", resp.TokenValidity["commercial_initial"])
}
