package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appmw "loan-proposal-service/internal/adapter/middleware"
)

type Handlers struct {
	Health        *Handler
	Proposals     *ProposalHandler
	Formalization *FormalizationHandler
	Storage       *StorageHandler
}

type RouterConfig struct {
	JWTSecret      []byte
	WebhookSecret  []byte
	Redis          *redis.Client
	IdempotencyTTL time.Duration
}

// RegisterRoutes mounts the public API. Everything under /proposals and
// /tasks requires a bearer token; mutating calls are idempotent per actor.
func RegisterRoutes(e *echo.Echo, h Handlers, cfg RouterConfig) {
	e.GET("/health", h.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/webhooks/signature", h.Formalization.SignatureWebhook, appmw.WebhookSignature(cfg.WebhookSecret))

	guard := []echo.MiddlewareFunc{appmw.ActorAuth(cfg.JWTSecret), appmw.Idempotency(cfg.Redis, cfg.IdempotencyTTL)}

	p := e.Group("/proposals", guard...)
	p.POST("", h.Proposals.Create)
	p.GET("/:id", h.Proposals.Get)
	p.POST("/:id/transitions", h.Proposals.Transition)
	p.GET("/:id/transitions", h.Proposals.ListTransitions)
	p.POST("/:id/observations", h.Proposals.AddObservation)

	p.POST("/:id/instruments", h.Formalization.IssueInstruments)
	p.POST("/:id/instruments/extend", h.Formalization.ExtendDueDates)
	p.GET("/:id/settlement", h.Formalization.SettlementQuote)
	p.POST("/:id/settlement", h.Formalization.ApplySettlement)
	p.POST("/:id/payments/refresh", h.Formalization.RefreshPayments)
	p.POST("/:id/signature/regenerate", h.Formalization.RegenerateSignature)

	p.GET("/:id/storage", h.Storage.State)
	p.POST("/:id/storage/sync", h.Storage.Sync)
	p.POST("/:id/storage/correct", h.Storage.Correct)
	p.POST("/:id/booklet", h.Storage.Booklet)

	t := e.Group("/tasks", guard...)
	t.POST("/:id/retry", h.Formalization.RetryTask)
}
