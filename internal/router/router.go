package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/middleware"
	"github.com/scidatahub/containerdb/internal/modules/handler"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/modules/serializer"
	"github.com/scidatahub/containerdb/internal/telemetry"
)

type RouterDeps struct {
	Config         *config.Config
	Log            *zap.Logger
	Users          repo.UserRepo
	DatasetHandler *handler.DatasetHandler
	EntityHandler  *handler.EntityHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	serializer.SetLogger(d.Log)

	r := gin.New()
	r.Use(gin.Recovery())

	if d.Config.Telemetry.Enabled && d.Config.Telemetry.OtlpEndpoint != "" {
		r.Use(telemetry.GinMiddleware(d.Config.App.Name))
		r.Use(telemetry.TraceIDMiddleware())
	}

	r.Use(middleware.ZapLogger(d.Log))

	// health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "ok"}) })

	api := r.Group("/api")
	{
		api.Use(middleware.UserAuth(d.Config, d.Users))

		datasets := api.Group("/datasets")
		{
			datasets.POST("", d.DatasetHandler.Upload)
			datasets.GET("", d.DatasetHandler.List)
			datasets.GET("/:id", d.DatasetHandler.Retrieve)
			datasets.GET("/:id/noredirect", d.DatasetHandler.RetrieveNoRedirect)
			datasets.GET("/:id/download", d.DatasetHandler.Download)
			datasets.GET("/:id/download/noredirect", d.DatasetHandler.DownloadNoRedirect)
			datasets.PATCH("/:id", d.DatasetHandler.Patch)
		}

		api.GET("/container-types", d.EntityHandler.ListContainerTypes)
		api.GET("/container-types/:id", d.EntityHandler.RetrieveContainerType)
		api.GET("/softwares", d.EntityHandler.ListSoftware)
		api.GET("/softwares/:id", d.EntityHandler.RetrieveSoftware)
		api.GET("/keywords", d.EntityHandler.ListKeywords)
		api.GET("/keywords/:id", d.EntityHandler.RetrieveKeyword)
		api.GET("/files", d.EntityHandler.ListFiles)
		api.GET("/files/:id", d.EntityHandler.RetrieveFile)
	}
	return r
}
