package main

import (
	"net/http"

	"github.com/facilitydesk/taskdispatch/internal/api"
	apiMiddleware "github.com/facilitydesk/taskdispatch/internal/api/middleware"
	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  string        `json:"status"`
	Channel channel.State `json:"channel"`
}

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.StripQueryToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	channelHandler := api.NewChannelHandler(app.session)
	dispatchHandler := api.NewDispatchHandler(app.service)
	eventsHandler := api.NewEventsHandler(app.broker)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.Authenticate(app.verifier))

			r.Post("/channel/connect", channelHandler.Connect)
			r.Post("/channel/disconnect", channelHandler.Disconnect)
			r.Get("/channel/status", channelHandler.Status)

			r.Post("/dispatch/preview", dispatchHandler.Preview)
			r.Post("/dispatch/runs", dispatchHandler.CreateRun)
			r.Get("/dispatch/runs/{id}", dispatchHandler.GetRun)
			r.Post("/dispatch/runs/{id}/apply", dispatchHandler.ApplyRun)
		})

		// The event stream is the only route taking the token from the query.
		r.With(apiMiddleware.Authenticate(app.verifier, apiMiddleware.AllowQueryToken())).
			Get("/events", eventsHandler.Stream)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, healthResponse{
			Status:  "ok",
			Channel: app.session.State(),
		})
	})

	return r
}
