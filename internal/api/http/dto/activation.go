package dto

import "time"

type IdentityPayload struct {
	HardwareID       string `json:"hardware_id"`
	MACAddress       string `json:"mac_address"`
	SerialNumber     string `json:"serial_number"`
	Model            string `json:"model"`
	Manufacturer     string `json:"manufacturer"`
	FirmwareVersion  string `json:"firmware_version"`
	FirmwareChecksum string `json:"firmware_checksum"`
	ImageDigest      string `json:"image_digest"`
}

type GeolocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ActivationRequest struct {
	DeviceID          string              `json:"device_id"`
	DeviceType        string              `json:"device_type"`
	CustomerType      string              `json:"customer_type"`
	CustomerID        string              `json:"customer_id"`
	InstallerID       string              `json:"installer_id"`
	OfflineActivation bool                `json:"offline_activation"`
	OfflineProof      string              `json:"offline_proof"`
	Identity          IdentityPayload     `json:"identity"`
	Location          *GeolocationPayload `json:"location"`
}

type ActivationResponse struct {
	Success         bool       `json:"success"`
	DeviceID        string     `json:"device_id,omitempty"`
	ActivationToken string     `json:"activation_token,omitempty"`
	TrustCategory   string     `json:"trust_category,omitempty"`
	CustomerType    string     `json:"customer_type,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ValidityDays    int        `json:"validity_days,omitempty"`
	ReasonCode      string     `json:"reason_code,omitempty"`
	Message         string     `json:"message"`
}

type ValidationRequest struct {
	DeviceID string           `json:"device_id"`
	Token    string           `json:"token"`
	Identity *IdentityPayload `json:"identity"`
}

type ValidationResponse struct {
	Valid           bool       `json:"valid"`
	DeviceID        string     `json:"device_id,omitempty"`
	TrustCategory   string     `json:"trust_category,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RequiresRenewal bool       `json:"requires_renewal"`
	DaysUntilExpiry int        `json:"days_until_expiry,omitempty"`
	ReasonCode      string     `json:"reason_code,omitempty"`
	Message         string     `json:"message"`
}

type RenewalRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

type RenewalResponse struct {
	Success         bool       `json:"success"`
	DeviceID        string     `json:"device_id,omitempty"`
	ActivationToken string     `json:"activation_token,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ValidityDays    int        `json:"validity_days,omitempty"`
	RenewalCount    int        `json:"renewal_count,omitempty"`
	ReasonCode      string     `json:"reason_code,omitempty"`
	Message         string     `json:"message"`
}

type StatusResponse struct {
	DeviceID        string     `json:"device_id"`
	Status          string     `json:"status"`
	TrustCategory   string     `json:"trust_category"`
	CustomerType    string     `json:"customer_type"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	RenewalCount    int        `json:"renewal_count"`
	TamperDetail    string     `json:"tamper_detail,omitempty"`
}
