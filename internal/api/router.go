package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Scheduler SchedulerService
	Queue     QueueService
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/slots", listSlotsHandler(cfg.Scheduler))

	r.Post("/appointments", createAppointmentHandler(cfg.Scheduler))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduler))
	r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Scheduler))
	r.Patch("/appointments/{id}/status", changeStatusHandler(cfg.Scheduler))

	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Scheduler))

	r.Get("/queue", getQueueHandler(cfg.Queue))

	return r
}
