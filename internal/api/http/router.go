package http

import (
	"github.com/gin-gonic/gin"

	"github.com/smartwatts/device-verification/internal/api/http/handler"
	"github.com/smartwatts/device-verification/internal/api/http/middleware"
	"github.com/smartwatts/device-verification/internal/audit"
	"github.com/smartwatts/device-verification/internal/verification"
)

type Services struct {
	Verification *verification.Service
	Approver     handler.FirmwareApprover
	AuditTrail   audit.Reader
	AdminAPIKey  string
	Version      string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.Version)
	engine.GET("/health", healthHandler.Check)
	engine.GET("/info", healthHandler.Info)

	activationHandler := handler.NewActivationHandler(srvs.Verification)
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/devices/activate", activationHandler.Activate)
		v1.POST("/devices/validate", activationHandler.Validate)
		v1.POST("/devices/renew", activationHandler.Renew)
		v1.GET("/devices/:id/status", activationHandler.Status)
	}

	adminHandler := handler.NewAdminHandler(srvs.Approver, srvs.AuditTrail)
	admin := v1.Group("/admin", middleware.APIKeyAuth(srvs.AdminAPIKey))
	{
		admin.POST("/firmware", adminHandler.ApproveFirmware)
		admin.GET("/devices/:id/audit", adminHandler.DeviceAudit)
	}
}
