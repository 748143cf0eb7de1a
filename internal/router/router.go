package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/handlers"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/middleware"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	alarmHandler *handlers.AlarmHandler,
	intentHandler *handlers.IntentHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Mutation rate limiter (60 req/min per user)
	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Alarm Routes ────
		r.Route("/alarms", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", alarmHandler.List)
			r.Get("/{id}", alarmHandler.Get)
			r.Get("/{id}/audio", alarmHandler.Audio)

			r.Group(func(r chi.Router) {
				r.Use(writeLimiter.Middleware)
				r.Post("/", alarmHandler.Create)
				r.Put("/{id}", alarmHandler.Update)
				r.Delete("/{id}", alarmHandler.Delete)
				r.Put("/{id}/toggle", alarmHandler.Toggle)
				r.Post("/{id}/snooze", alarmHandler.Snooze)
				r.Post("/{id}/dismiss", alarmHandler.Dismiss)
			})
		})

		// ──── Intent Routes ────
		r.Route("/intents", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", intentHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(writeLimiter.Middleware)
				r.Put("/{id}", intentHandler.Update)
				r.Post("/{id}/retry", intentHandler.Retry)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
