package tests

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
)

const ApprovedChecksum = "abc123def456"

func activationRequest(deviceID string) dto.ActivationRequest {
	return dto.ActivationRequest{
		DeviceID:     deviceID,
		DeviceType:   "SMART_METER",
		CustomerType: "RESIDENTIAL",
		CustomerID:   "cust-1",
		InstallerID:  "inst-1",
		Identity: dto.IdentityPayload{
			HardwareID:       "HW-" + deviceID,
			MACAddress:       "aa:bb:cc:dd:ee:ff",
			SerialNumber:     "SN-" + deviceID,
			Model:            "SW-M300",
			Manufacturer:     "SmartWatts",
			FirmwareVersion:  "2.4.1",
			FirmwareChecksum: ApprovedChecksum,
		},
	}
}

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := doJSON(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestActivationLifecycle(t *testing.T, router *gin.Engine) {
	var activationToken string

	t.Run("activate", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/devices/activate", activationRequest("sys-dev-1"))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.ActivationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "OEM_LOCKED", resp.TrustCategory)
		assert.Equal(t, 365, resp.ValidityDays)
		require.NotEmpty(t, resp.ActivationToken)
		activationToken = resp.ActivationToken
	})

	t.Run("re-activation conflicts", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/devices/activate", activationRequest("sys-dev-1"))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("validate", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/devices/validate", dto.ValidationRequest{
			DeviceID: "sys-dev-1",
			Token:    activationToken,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.ValidationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Valid)
		assert.Equal(t, "VALIDATED", resp.ReasonCode)
	})

	t.Run("renew rotates token", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/devices/renew", dto.RenewalRequest{
			DeviceID: "sys-dev-1",
			Token:    activationToken,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.RenewalResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.RenewalCount)
		require.NotEmpty(t, resp.ActivationToken)

		// The superseded token stops validating.
		rr = doJSON(router, "POST", "/api/v1/devices/validate", dto.ValidationRequest{
			DeviceID: "sys-dev-1",
			Token:    activationToken,
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		activationToken = resp.ActivationToken
	})

	t.Run("status", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/devices/sys-dev-1/status", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.StatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "ACTIVE", resp.Status)
		assert.Equal(t, 1, resp.RenewalCount)
	})
}

func TestTamperFlow(t *testing.T, router *gin.Engine, adminAPIKey string) {
	rr := doJSON(router, "POST", "/api/v1/devices/activate", activationRequest("sys-dev-tamper"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var act dto.ActivationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &act))

	t.Run("swapped hardware is denied and flagged", func(t *testing.T) {
		reported := activationRequest("sys-dev-tamper").Identity
		reported.HardwareID = "HW-SWAPPED"

		rr := doJSON(router, "POST", "/api/v1/devices/validate", dto.ValidationRequest{
			DeviceID: "sys-dev-tamper",
			Token:    act.ActivationToken,
			Identity: &reported,
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = doJSON(router, "GET", "/api/v1/devices/sys-dev-tamper/status", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var status dto.StatusResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
		assert.Equal(t, "TAMPER_FLAGGED", status.Status)
		assert.Equal(t, "OFFLINE_LOCKED", status.TrustCategory)
	})

	t.Run("tamper event is on the audit trail", func(t *testing.T) {
		rr := doJSONWithKey(router, "GET", "/api/v1/admin/devices/sys-dev-tamper/audit", nil, adminAPIKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListAuditResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		events := make([]string, 0, len(resp.Entries))
		for _, e := range resp.Entries {
			events = append(events, e.Event)
		}
		assert.Contains(t, events, "ACTIVATE")
		assert.Contains(t, events, "TAMPER_DETECTED")
	})
}

func TestAdminFirmwareApproval(t *testing.T, router *gin.Engine, adminAPIKey string) {
	t.Run("rejected without key", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/admin/firmware", dto.ApproveFirmwareRequest{Checksum: "xyz"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("approval upgrades later activations", func(t *testing.T) {
		req := activationRequest("sys-dev-fw")
		req.Identity.FirmwareChecksum = "freshly-built-fw"

		rr := doJSON(router, "POST", "/api/v1/devices/activate", req)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ActivationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "UNVERIFIED", resp.TrustCategory)

		rr = doJSONWithKey(router, "POST", "/api/v1/admin/firmware",
			dto.ApproveFirmwareRequest{Checksum: "freshly-built-fw"}, adminAPIKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		req2 := activationRequest("sys-dev-fw2")
		req2.Identity.FirmwareChecksum = "freshly-built-fw"
		rr = doJSON(router, "POST", "/api/v1/devices/activate", req2)
		require.Equal(t, http.StatusOK, rr.Code)

		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "OEM_LOCKED", resp.TrustCategory)
	})
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doJSONWithKey(router *gin.Engine, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
