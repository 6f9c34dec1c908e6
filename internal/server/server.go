// Package server exposes the offline engine to the host application over a
// local read-mostly HTTP facade: aggregate counts, draft listings and the
// manual queue actions the UI offers (retry all, clear). It is not a sync
// protocol; the remote backend stays behind the queue handler.
package server

import (
	"net/http"

	"github.com/festbuddy/offlinebox/internal/coordinator"
	"github.com/festbuddy/offlinebox/internal/server/middlewares"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// An IOC is an Inversion Of Control pattern used to init the server package.
type IOC struct {
	Version     string
	Coordinator *coordinator.Coordinator
}

// EchoEngine instantiates the web server.
func EchoEngine(ctrl IOC) *echo.Echo {
	engine := echo.New()
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.Gzip())

	engine.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${status}] ${method} ${uri} (${bytes_in}) ${latency_human}\n",
	}))
	// Error handler
	engine.HTTPErrorHandler = middlewares.HTTPErrorHandler

	////////////
	// Router //
	////////////

	router := engine.Group("")

	// generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	//
	// offline handlers
	//
	offline := &offline{
		coordinator: ctrl.Coordinator,
	}
	router.GET("/offline/state", offline.State)
	router.GET("/offline/drafts", offline.Drafts)
	router.GET("/offline/queue/stats", offline.QueueStats)
	router.POST("/offline/queue/retry", offline.RetryFailed)
	router.POST("/offline/queue/clear", offline.ClearQueue)
	router.POST("/offline/cleanup", offline.Cleanup)

	return engine
}
