// Package http serves the bot's status and control API.
package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chessbot/internal/core"
	"chessbot/internal/processor"
	"chessbot/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

const (
	rateLimitRate = 10 // req/sec
	callTimeout   = 5 * time.Second
)

// Caller runs a function on the control loop
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Controller is the orchestrator surface exposed over HTTP. Its methods are
// only invoked through the Caller.
type Controller interface {
	Snapshot() core.StateResponse
	Reset()
	ForceSearch() (uint64, error)
}

// History is the read side of the game journal
type History interface {
	QueryGames(gameID string) ([]storage.GameRecord, error)
	QueryDeliveries(gameID string) ([]storage.DeliveryRecord, error)
	IsHealthy() bool
}

type HTTPHandler struct {
	loop    Caller
	ctrl    Controller
	history History
}

// NewFiberApp builds the API. history may be nil when the journal is disabled.
func NewFiberApp(loop Caller, ctrl Controller, history History, devMode bool) *fiber.App {
	h := &HTTPHandler{loop: loop, ctrl: ctrl, history: history}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           30 * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if devMode {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")

	maxReq := rateLimitRate
	if devMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:          maxReq,
		Expiration:   1 * time.Second,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.CodeRateLimited,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Use(contentTypeValidator)

	api.Get("/state", h.GetState)
	api.Post("/game/reset", h.ResetGame)
	api.Post("/search", h.ForceSearch)
	api.Get("/games", h.ListGames)
	api.Get("/games/:gameId/deliveries", h.ListDeliveries)

	return app
}

// Health check endpoint
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	storageStatus := "disabled"
	if h.history != nil {
		storageStatus = "ok"
		if !h.history.IsHealthy() {
			storageStatus = "degraded"
		}
	}
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"storage": storageStatus,
		"time":    time.Now().Unix(),
	})
}

// GetState returns the orchestrator snapshot
func (h *HTTPHandler) GetState(c *fiber.Ctx) error {
	var resp core.StateResponse
	if err := h.call(c, func() { resp = h.ctrl.Snapshot() }); err != nil {
		return loopError(c, err)
	}
	return c.JSON(resp)
}

// ResetGame abandons the current game and clears any halt
func (h *HTTPHandler) ResetGame(c *fiber.Ctx) error {
	var resp core.StateResponse
	err := h.call(c, func() {
		h.ctrl.Reset()
		resp = h.ctrl.Snapshot()
	})
	if err != nil {
		return loopError(c, err)
	}
	return c.JSON(resp)
}

// ForceSearch requests a fresh search for the current position
func (h *HTTPHandler) ForceSearch(c *fiber.Ctx) error {
	var (
		gen       uint64
		searchErr error
	)
	if err := h.call(c, func() { gen, searchErr = h.ctrl.ForceSearch() }); err != nil {
		return loopError(c, err)
	}

	switch {
	case errors.Is(searchErr, processor.ErrHalted):
		return c.Status(fiber.StatusConflict).JSON(core.ErrorResponse{
			Error:   "automated play halted",
			Code:    core.CodeHalted,
			Details: searchErr.Error(),
		})
	case errors.Is(searchErr, processor.ErrNotMyTurn):
		return c.Status(fiber.StatusConflict).JSON(core.ErrorResponse{
			Error: "not my turn",
			Code:  core.CodeNotMyTurn,
		})
	case errors.Is(searchErr, processor.ErrDeliveryPending):
		return c.Status(fiber.StatusConflict).JSON(core.ErrorResponse{
			Error: "delivery pending",
			Code:  core.CodeDeliveryPending,
		})
	case searchErr != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error:   "search request failed",
			Code:    core.CodeInternalError,
			Details: searchErr.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(core.SearchResponse{Generation: gen})
}

// ListGames returns journaled games, newest first
func (h *HTTPHandler) ListGames(c *fiber.Ctx) error {
	if h.history == nil {
		return journalDisabled(c)
	}

	games, err := h.history.QueryGames("")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error:   "failed to query games",
			Code:    core.CodeInternalError,
			Details: err.Error(),
		})
	}

	out := make([]core.GameResponse, 0, len(games))
	for _, g := range games {
		resp := core.GameResponse{
			GameID:     g.GameID,
			InitialFEN: g.InitialFEN,
			MyColor:    g.MyColor,
			StartedAt:  g.StartTimeUTC,
			EndReason:  g.EndReason,
		}
		if g.EndTimeUTC.Valid {
			ended := g.EndTimeUTC.Time
			resp.EndedAt = &ended
		}
		out = append(out, resp)
	}
	return c.JSON(out)
}

// ListDeliveries returns the finished deliveries of one game
func (h *HTTPHandler) ListDeliveries(c *fiber.Ctx) error {
	gameID := c.Params("gameId")

	// Validate UUID format
	if !isValidUUID(gameID) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid game ID format",
			Code:    core.CodeInvalidRequest,
			Details: "game ID must be a valid UUID",
		})
	}
	if h.history == nil {
		return journalDisabled(c)
	}

	records, err := h.history.QueryDeliveries(gameID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error:   "failed to query deliveries",
			Code:    core.CodeInternalError,
			Details: err.Error(),
		})
	}
	if len(records) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{
			Error: "no deliveries for game",
			Code:  core.CodeNotFound,
		})
	}

	out := make([]core.DeliveryResponse, 0, len(records))
	for _, d := range records {
		out = append(out, core.DeliveryResponse{
			EntryID:  d.EntryID,
			Ply:      d.Ply,
			Move:     d.MoveUCI,
			FEN:      d.FEN,
			Status:   d.Status,
			Via:      d.Via,
			Retries:  d.Retries,
			Error:    d.Error,
			Finished: d.FinishedUTC,
		})
	}
	return c.JSON(out)
}

func (h *HTTPHandler) call(c *fiber.Ctx, fn func()) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), callTimeout)
	defer cancel()
	return h.loop.Call(ctx, fn)
}

func loopError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(core.ErrorResponse{
		Error:   "orchestrator unavailable",
		Code:    core.CodeUnavailable,
		Details: err.Error(),
	})
}

func journalDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(core.ErrorResponse{
		Error: "game journal disabled",
		Code:  core.CodeUnavailable,
	})
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
