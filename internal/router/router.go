package router

import (
	"net/http"
	"strings"

	"github.com/fieldops/request-service/api"
	"github.com/fieldops/request-service/internal/auth"
	"github.com/fieldops/request-service/internal/handler"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const pathSwagger = "/swagger"

func New(verifier *auth.Verifier, requestHandler *handler.RequestHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
	r.GET(pathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, pathSwagger+"/") })
	r.GET(pathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = pathSwagger + "/index.html"
			c.Request.RequestURI = pathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1", auth.Middleware(verifier))
	{
		v1.POST("/requests", requestHandler.Create)
		v1.GET("/requests", requestHandler.List)
		v1.GET("/requests/:id", requestHandler.Get)
		v1.PUT("/requests/:id", requestHandler.Update)
		v1.POST("/requests/:id/technician", requestHandler.AssignTechnician)
		v1.POST("/requests/:id/schedule", requestHandler.Schedule)
		v1.POST("/requests/:id/acknowledge", requestHandler.Acknowledge)
		v1.POST("/requests/:id/start", requestHandler.Start)
		v1.POST("/requests/:id/finish", requestHandler.Finish)
		v1.POST("/requests/:id/close", requestHandler.Close)
		v1.DELETE("/requests/:id", requestHandler.Delete)
		v1.GET("/requests/:id/artifacts/:kind", requestHandler.DownloadArtifact)
	}

	return r
}
