package dto

type HealthResponse struct {
	Status string `json:"status"`
}

type InfoResponse struct {
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	TokenValidity map[string]string `json:"token_validity"`
}
