package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartwatts/device-verification/internal/api/http/dto"
	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/record"
	"github.com/smartwatts/device-verification/internal/tamper"
	"github.com/smartwatts/device-verification/internal/token"
	"github.com/smartwatts/device-verification/internal/verification"
)

type ActivationHandler struct {
	service *verification.Service
}

func NewActivationHandler(service *verification.Service) *ActivationHandler {
	return &ActivationHandler{service: service}
}

// Activate handles POST /api/v1/devices/activate.
func (h *ActivationHandler) Activate(c *gin.Context) {
	var req dto.ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ActivationResponse{
			Success:    false,
			ReasonCode: verification.ReasonInvalidIdentity,
			Message:    err.Error(),
		})
		return
	}

	result, err := h.service.Activate(c.Request.Context(), verification.ActivateRequest{
		DeviceID:          req.DeviceID,
		DeviceType:        req.DeviceType,
		CustomerType:      req.CustomerType,
		CustomerID:        req.CustomerID,
		InstallerID:       req.InstallerID,
		OfflineActivation: req.OfflineActivation,
		OfflineProof:      req.OfflineProof,
		Identity:          identityClaim(req.Identity),
		Location:          geolocation(req.Location),
	})
	if err != nil {
		c.JSON(statusFor(err), dto.ActivationResponse{
			Success:    false,
			DeviceID:   req.DeviceID,
			ReasonCode: verification.ReasonFor(err),
			Message:    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.ActivationResponse{
		Success:         true,
		DeviceID:        result.DeviceID,
		ActivationToken: result.Token,
		TrustCategory:   string(result.TrustCategory),
		CustomerType:    string(result.CustomerType),
		ActivatedAt:     &result.ActivatedAt,
		ExpiresAt:       &result.ExpiresAt,
		ValidityDays:    result.ValidityDays,
		ReasonCode:      verification.ReasonActivated,
		Message:         "Device activated successfully",
	})
}

// Validate handles POST /api/v1/devices/validate.
func (h *ActivationHandler) Validate(c *gin.Context) {
	var req dto.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ValidationResponse{
			Valid:      false,
			ReasonCode: verification.ReasonInvalidIdentity,
			Message:    err.Error(),
		})
		return
	}

	var claim *identity.Claim
	if req.Identity != nil {
		ic := identityClaim(*req.Identity)
		claim = &ic
	}

	result, err := h.service.Validate(c.Request.Context(), req.DeviceID, req.Token, claim)
	if err != nil {
		c.JSON(statusFor(err), dto.ValidationResponse{
			Valid:      false,
			DeviceID:   req.DeviceID,
			ReasonCode: verification.ReasonFor(err),
			Message:    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.ValidationResponse{
		Valid:           true,
		DeviceID:        result.DeviceID,
		TrustCategory:   string(result.TrustCategory),
		ExpiresAt:       &result.ExpiresAt,
		RequiresRenewal: result.RequiresRenewal,
		DaysUntilExpiry: result.DaysUntilExpiry,
		ReasonCode:      result.ReasonCode,
		Message:         "Device access granted",
	})
}

// Renew handles POST /api/v1/devices/renew.
func (h *ActivationHandler) Renew(c *gin.Context) {
	var req dto.RenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RenewalResponse{
			Success:    false,
			ReasonCode: verification.ReasonInvalidIdentity,
			Message:    err.Error(),
		})
		return
	}

	result, err := h.service.Renew(c.Request.Context(), req.DeviceID, req.Token)
	if err != nil {
		c.JSON(statusFor(err), dto.RenewalResponse{
			Success:    false,
			DeviceID:   req.DeviceID,
			ReasonCode: verification.ReasonFor(err),
			Message:    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.RenewalResponse{
		Success:         true,
		DeviceID:        result.DeviceID,
		ActivationToken: result.Token,
		ExpiresAt:       &result.ExpiresAt,
		ValidityDays:    result.ValidityDays,
		RenewalCount:    result.RenewalCount,
		ReasonCode:      verification.ReasonRenewed,
		Message:         "Device renewed successfully",
	})
}

// Status handles GET /api/v1/devices/:id/status.
func (h *ActivationHandler) Status(c *gin.Context) {
	deviceID := c.Param("id")

	result, err := h.service.Status(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, verification.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to read device status", "device_id", deviceID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
		return
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		DeviceID:        result.DeviceID,
		Status:          string(result.Status),
		TrustCategory:   string(result.TrustCategory),
		CustomerType:    string(result.CustomerType),
		ActivatedAt:     &result.ActivatedAt,
		ExpiresAt:       &result.ExpiresAt,
		DaysUntilExpiry: result.DaysUntilExpiry,
		RenewalCount:    result.RenewalCount,
		TamperDetail:    result.TamperDetail,
	})
}

// statusFor maps engine failures onto HTTP status codes. The response body
// always carries the stable reason code; the status code is a convenience
// for generic clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, verification.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, verification.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrSuperseded), errors.Is(err, token.ErrTampered):
		return http.StatusUnauthorized
	case errors.Is(err, tamper.ErrTamperDetected):
		return http.StatusForbidden
	case errors.Is(err, token.ErrSigningKeyUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func identityClaim(p dto.IdentityPayload) identity.Claim {
	return identity.Claim{
		HardwareID:       p.HardwareID,
		MACAddress:       p.MACAddress,
		SerialNumber:     p.SerialNumber,
		Model:            p.Model,
		Manufacturer:     p.Manufacturer,
		FirmwareVersion:  p.FirmwareVersion,
		FirmwareChecksum: p.FirmwareChecksum,
		ImageDigest:      p.ImageDigest,
	}
}

func geolocation(p *dto.GeolocationPayload) *record.Geolocation {
	if p == nil {
		return nil
	}
	return &record.Geolocation{Lat: p.Lat, Lng: p.Lng}
}
