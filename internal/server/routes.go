package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func SetupRoutes(handler *StatusService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", handler.GetHealth)
	e.GET("/history", handler.GetHistory)
	e.GET("/cases/:id", handler.GetCase)

	return e
}
