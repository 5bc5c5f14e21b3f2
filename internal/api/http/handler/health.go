package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartwatts/device-verification/internal/api/http/dto"
	"github.com/smartwatts/device-verification/internal/policy"
)

type HealthHandler struct {
	version string
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

func (h *HealthHandler) Info(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.InfoResponse{
		Service:     "device-verification",
		Version:     h.version,
		Description: "Device activation and trust verification service",
		TokenValidity: map[string]string{
			"residential_initial": fmt.Sprintf("%d days", policy.InitialResidentialDays),
			"commercial_initial":  fmt.Sprintf("%d days", policy.InitialCommercialDays),
			"all_renewals":        fmt.Sprintf("%d days", policy.RenewalDays),
		},
	})
}
