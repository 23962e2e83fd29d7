package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/domain/signal"
	"github.com/gin-gonic/gin"
)

// SignalService is what the signal routes need from the lifecycle manager.
type SignalService interface {
	Create(ctx context.Context, id actor.Identity, f signal.Fields, chartImage *string) (signal.Signal, error)
	List(ctx context.Context, id actor.Identity, status *signal.Status) ([]signal.Signal, error)
	Get(ctx context.Context, id actor.Identity, signalID string) (signal.Signal, error)
	ListOwn(ctx context.Context, id actor.Identity) ([]signal.Signal, error)
	ListPending(ctx context.Context, id actor.Identity) ([]signal.Signal, error)
	CountPending(ctx context.Context, id actor.Identity) (int, error)
	Transition(ctx context.Context, id actor.Identity, signalID string, next signal.Status) (signal.Signal, error)
	Update(ctx context.Context, id actor.Identity, signalID string, f signal.Fields) (signal.Signal, error)
	Delete(ctx context.Context, id actor.Identity, signalID string) error
}

type SignalsHandler struct {
	svc SignalService
}

func NewSignalsHandler(svc SignalService) *SignalsHandler {
	return &SignalsHandler{svc: svc}
}

const signalTimeout = 3 * time.Second

// List returns a bare array of the signals the caller may see.
func (h *SignalsHandler) List(ctx *gin.Context, id actor.Identity) {
	var status *signal.Status

	if raw := strings.TrimSpace(ctx.Query("status")); raw != "" {
		s, err := signal.ParseStatus(raw)
		if err != nil {
			RespondServiceError(ctx, err)
			return
		}
		status = &s
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	list, err := h.svc.List(cctx, id, status)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, list)
}

func (h *SignalsHandler) Get(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	s, err := h.svc.Get(cctx, id, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, s)
}

func (h *SignalsHandler) Mine(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	list, err := h.svc.ListOwn(cctx, id)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, list)
}

func (h *SignalsHandler) Pending(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	list, err := h.svc.ListPending(cctx, id)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, list)
}

func (h *SignalsHandler) PendingCount(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	n, err := h.svc.CountPending(cctx, id)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *SignalsHandler) Create(ctx *gin.Context, id actor.Identity) {
	var req signal.CreateSignalRequest

	if !BindJSON(ctx, &req) {
		return
	}

	f, err := req.Fields()
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	s, err := h.svc.Create(cctx, id, f, req.ChartImage)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Signal created",
		"signal":  s,
	})
}

func (h *SignalsHandler) UpdateStatus(ctx *gin.Context, id actor.Identity) {
	var req signal.UpdateStatusRequest

	if !BindJSON(ctx, &req) {
		return
	}

	next, err := signal.ParseStatus(req.Status)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	s, err := h.svc.Transition(cctx, id, ctx.Param("id"), next)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, s)
}

func (h *SignalsHandler) Update(ctx *gin.Context, id actor.Identity) {
	var req signal.UpdateSignalRequest

	if !BindJSON(ctx, &req) {
		return
	}

	f, err := req.Fields()
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	s, err := h.svc.Update(cctx, id, ctx.Param("id"), f)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, s)
}

func (h *SignalsHandler) Delete(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), signalTimeout)
	defer cancel()

	if err := h.svc.Delete(cctx, id, ctx.Param("id")); err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Signal deleted successfully"})
}
