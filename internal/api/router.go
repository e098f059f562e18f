package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
	Metrics     *Metrics
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(apiHandler.logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(opts.Metrics.Middleware)

	r.Get("/", apiHandler.StatusHandler)
	r.Handle("/metrics", opts.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", apiHandler.StatusHandler)
		r.Get("/health", apiHandler.HealthHandler)

		r.Route("/users", func(r chi.Router) {
			r.Post("/login", apiHandler.LoginHandler)
			r.Post("/add", apiHandler.AddUserHandler)
			r.Get("/", apiHandler.ListUsersHandler)
			r.With(apiHandler.JWTAuthMiddleware).Get("/profile", apiHandler.ProfileHandler)
			r.Get("/{id}", apiHandler.GetUserHandler)
			r.Put("/{id}", apiHandler.UpdateUserHandler)
			r.Delete("/{id}", apiHandler.DeleteUserHandler)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", apiHandler.ListChannelsHandler)
			r.Post("/add", apiHandler.AddChannelHandler)
			r.Get("/{id}", apiHandler.GetChannelHandler)
			r.Put("/{id}", apiHandler.UpdateChannelHandler)
			r.Delete("/{id}", apiHandler.DeleteChannelHandler)
			r.With(apiHandler.OptionalJWTMiddleware).Get("/{id}/messages", apiHandler.ChannelMessagesHandler)
		})

		r.Route("/messages", func(r chi.Router) {
			r.With(apiHandler.OptionalJWTMiddleware).Get("/channels/{channelId}/messages", apiHandler.ChannelMessagesHandler)

			// User-authenticated routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.JWTAuthMiddleware)
				r.Post("/", apiHandler.SendMessageHandler)
				r.Get("/direct/all", apiHandler.AllDirectMessagesHandler)
				r.Get("/direct/{id}", apiHandler.ConversationHandler)
			})
		})
	})

	return r
}
