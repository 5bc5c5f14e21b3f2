package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwatts/device-verification/internal/api/http/dto"
	"github.com/smartwatts/device-verification/internal/audit"
	"github.com/smartwatts/device-verification/internal/record"
	"github.com/smartwatts/device-verification/internal/registry"
	"github.com/smartwatts/device-verification/internal/token"
	"github.com/smartwatts/device-verification/internal/verification"
)

const approvedChecksum = "abc123def456"

func init() {
	gin.SetMode(gin.TestMode)
}

func newService() *verification.Service {
	store := record.NewMemoryStore()
	sink := audit.NewMemorySink()
	reg := registry.NewMemoryRegistry(approvedChecksum)
	issuer := token.NewIssuer("test-secret", "smartwatts-device-verification")
	return verification.NewService(store, sink, reg, issuer, verification.Config{})
}

func setupActivationRouter(h *ActivationHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/devices/activate", h.Activate)
	r.POST("/api/v1/devices/validate", h.Validate)
	r.POST("/api/v1/devices/renew", h.Renew)
	r.GET("/api/v1/devices/:id/status", h.Status)
	return r
}

func activationBody(deviceID string) dto.ActivationRequest {
	return dto.ActivationRequest{
		DeviceID:     deviceID,
		DeviceType:   "SMART_METER",
		CustomerType: "RESIDENTIAL",
		Identity: dto.IdentityPayload{
			HardwareID:       "HW-METER-001",
			MACAddress:       "aa:bb:cc:dd:ee:ff",
			SerialNumber:     "SN-001",
			Model:            "SW-M300",
			Manufacturer:     "SmartWatts",
			FirmwareVersion:  "2.4.1",
			FirmwareChecksum: approvedChecksum,
		},
	}
}

func postJSON(r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestActivateEndpoint(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ActivationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "dev-1", resp.DeviceID)
	assert.Equal(t, "OEM_LOCKED", resp.TrustCategory)
	assert.Equal(t, 365, resp.ValidityDays)
	assert.Equal(t, "ACTIVATED", resp.ReasonCode)
	assert.NotEmpty(t, resp.ActivationToken)
}

func TestActivateEndpointInvalidIdentity(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	body := activationBody("dev-1")
	body.Identity.HardwareID = ""

	w := postJSON(r, "/api/v1/devices/activate", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ActivationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "INVALID_IDENTITY", resp.ReasonCode)
}

func TestActivateEndpointAlreadyActive(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp dto.ActivationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ALREADY_ACTIVE", resp.ReasonCode)
}

func TestValidateEndpoint(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)
	var act dto.ActivationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &act))

	w = postJSON(r, "/api/v1/devices/validate", dto.ValidationRequest{
		DeviceID: "dev-1",
		Token:    act.ActivationToken,
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ValidationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "VALIDATED", resp.ReasonCode)
	assert.False(t, resp.RequiresRenewal)
}

func TestValidateEndpointForgedToken(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/api/v1/devices/validate", dto.ValidationRequest{
		DeviceID: "dev-1",
		Token:    "forged.token.value",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp dto.ValidationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, "TOKEN_TAMPERED", resp.ReasonCode)
}

func TestValidateEndpointUnknownDevice(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)
	var act dto.ActivationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &act))

	w = postJSON(r, "/api/v1/devices/validate", dto.ValidationRequest{
		DeviceID: "dev-2",
		Token:    act.ActivationToken,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateEndpointTamper(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)
	var act dto.ActivationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &act))

	reported := activationBody("dev-1").Identity
	reported.HardwareID = "HW-SWAPPED-999"

	w = postJSON(r, "/api/v1/devices/validate", dto.ValidationRequest{
		DeviceID: "dev-1",
		Token:    act.ActivationToken,
		Identity: &reported,
	})

	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp dto.ValidationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "TAMPER_DETECTED", resp.ReasonCode)
}

func TestRenewEndpoint(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)
	var act dto.ActivationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &act))

	w = postJSON(r, "/api/v1/devices/renew", dto.RenewalRequest{
		DeviceID: "dev-1",
		Token:    act.ActivationToken,
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.RenewalResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RenewalCount)
	assert.Equal(t, 365, resp.ValidityDays)
	assert.NotEqual(t, act.ActivationToken, resp.ActivationToken)

	// The old token generation no longer validates.
	w = postJSON(r, "/api/v1/devices/validate", dto.ValidationRequest{
		DeviceID: "dev-1",
		Token:    act.ActivationToken,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var stale dto.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stale))
	assert.Equal(t, "TOKEN_SUPERSEDED", stale.ReasonCode)
}

func TestStatusEndpoint(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	w := postJSON(r, "/api/v1/devices/activate", activationBody("dev-1"))
	require.Equal(t, http.StatusOK, w.Code)

	req, _ := http.NewRequest("GET", "/api/v1/devices/dev-1/status", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.StatusResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", resp.DeviceID)
	assert.Equal(t, "ACTIVE", resp.Status)
	assert.Equal(t, "OEM_LOCKED", resp.TrustCategory)
}

func TestStatusEndpointNotFound(t *testing.T) {
	h := NewActivationHandler(newService())
	r := setupActivationRouter(h)

	req, _ := http.NewRequest("GET", "/api/v1/devices/missing/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
