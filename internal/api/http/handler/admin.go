package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartwatts/device-verification/internal/api/http/dto"
	"github.com/smartwatts/device-verification/internal/audit"
)

// FirmwareApprover adds checksums to the firmware allow-list. Both registry
// implementations satisfy it.
type FirmwareApprover interface {
	Approve(ctx context.Context, firmwareChecksum string) error
}

type AdminHandler struct {
	approver FirmwareApprover
	trail    audit.Reader
}

func NewAdminHandler(approver FirmwareApprover, trail audit.Reader) *AdminHandler {
	return &AdminHandler{approver: approver, trail: trail}
}

// ApproveFirmware handles POST /api/v1/admin/firmware.
func (h *AdminHandler) ApproveFirmware(c *gin.Context) {
	var req dto.ApproveFirmwareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.approver.Approve(c.Request.Context(), req.Checksum); err != nil {
		slog.Error("Failed to approve firmware checksum", "checksum", req.Checksum, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to approve firmware checksum"})
		return
	}

	slog.Info("Firmware checksum approved", "checksum", req.Checksum)
	c.JSON(http.StatusCreated, gin.H{"message": "firmware checksum approved"})
}

// DeviceAudit handles GET /api/v1/admin/devices/:id/audit.
func (h *AdminHandler) DeviceAudit(c *gin.Context) {
	deviceID := c.Param("id")

	entries, err := h.trail.ListByDevice(c.Request.Context(), deviceID)
	if err != nil {
		slog.Error("Failed to list audit trail", "device_id", deviceID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to list audit trail"})
		return
	}

	out := make([]dto.AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.AuditEntryResponse{
			ID:            e.ID.String(),
			Event:         string(e.Event),
			DeviceID:      e.DeviceID,
			Timestamp:     e.Timestamp,
			TrustCategory: string(e.TrustCategory),
			ReasonCode:    e.ReasonCode,
			Detail:        e.Detail,
		}
	}

	c.JSON(http.StatusOK, dto.ListAuditResponse{Entries: out, Count: len(out)})
}
