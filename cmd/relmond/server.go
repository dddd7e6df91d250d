package main

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/relmon/cmd/relmond/handlers"
	"github.com/opst/relmon/pkg/callback"
	"github.com/opst/relmon/pkg/utils/echoutil"
)

// Auth is who can do what.
type Auth struct {
	// members of AdminGroup can change RelMons.
	AdminGroup string

	// ServiceAccounts and tokens verified by Verifier can report progress.
	ServiceAccounts []string
	Verifier        *callback.Verifier
}

func BuildServer(ctrl handlers.Controller, auth Auth, loglevel string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	echoutil.SetLevel(e.Logger, loglevel)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		e.Logger.Error(err)
	}

	e.Use(
		middleware.Recover(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}),
		echoutil.LogHandlerFunc,
		middleware.CORS(),
	)

	api := e.Group("/api")
	admin := handlers.RequireGroup(auth.AdminGroup)

	api.POST("/create", handlers.CreateHandler(ctrl), admin)
	api.POST("/edit", handlers.EditHandler(ctrl), admin)
	api.POST("/reset", handlers.ResetHandler(ctrl), admin)
	api.DELETE("/delete", handlers.DeleteHandler(ctrl), admin)
	api.GET("/get_relmons", handlers.ListHandler(ctrl))
	api.POST("/update", handlers.UpdateHandler(ctrl), handlers.RequireCallbackAuth(auth.ServiceAccounts, auth.Verifier))
	api.GET("/tick", handlers.TickHandler(ctrl))
	api.GET("/user", handlers.UserHandler(auth.AdminGroup))

	return e
}
