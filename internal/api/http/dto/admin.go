package dto

import "time"

type ApproveFirmwareRequest struct {
	Checksum string `json:"checksum" binding:"required"`
}

type AuditEntryResponse struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	TrustCategory string    `json:"trust_category,omitempty"`
	ReasonCode    string    `json:"reason_code"`
	Detail        string    `json:"detail,omitempty"`
}

type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Count   int                  `json:"count"`
}
