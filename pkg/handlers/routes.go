package handlers

import (
	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/dkhoanguyen/playground/pkg/handlers/health"
	v1 "github.com/dkhoanguyen/playground/pkg/handlers/v1"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Register(router gin.IRouter, databases db.Provider, logger *zap.Logger) {
	router.GET("/health", health.LivenessGet)
	router.GET("/health/liveness", health.LivenessGet)
	router.GET("/health/readiness", health.MakeReadiness(databases, logger))

	router.GET("/", v1.MakeIndex(databases, logger))

	api := router.Group("/api/v1")
	api.GET("/tables", v1.MakeTables(databases, logger))
	api.POST("/compose/validate", v1.MakeComposeValidate(logger))
}
