package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/extract"
	"github.com/dukerupert/shopgrab/internal/ledger"
	"github.com/dukerupert/shopgrab/internal/metrics"
	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/trial"
)

type ExtractHandler struct {
	quota     *quota.Service
	ledger    *ledger.Ledger
	extractor ledger.Extractor
	trials    *trial.Codec
	logger    *slog.Logger
	now       func() time.Time
}

func NewExtractHandler(qs *quota.Service, l *ledger.Ledger, ex ledger.Extractor, tc *trial.Codec, logger *slog.Logger) *ExtractHandler {
	return &ExtractHandler{
		quota:     qs,
		ledger:    l,
		extractor: ex,
		trials:    tc,
		logger:    logger,
		now:       time.Now,
	}
}

type extractRequest struct {
	URL string `json:"url"`
}

type accountExtractResponse struct {
	Success          bool                    `json:"success"`
	JobID            string                  `json:"jobId"`
	Product          *model.ExtractedProduct `json:"product"`
	IsTrial          bool                    `json:"isTrial"`
	RemainingCredits int                     `json:"remainingCredits"`
}

type trialExtractResponse struct {
	Success         bool               `json:"success"`
	Product         *model.ProductData `json:"product"`
	IsTrial         bool               `json:"isTrial"`
	RemainingTrials int                `json:"remainingTrials"`
}

// Extract serves POST /api/extract. Signed-in callers spend quota and get a
// job record; anonymous callers spend the trial cookie.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if _, err := extract.ValidateURL(req.URL); err != nil {
		api.HandleError(w, classify(err))
		return
	}

	if id, ok := auth.FromContext(r.Context()); ok {
		h.forAccount(w, r, id.AccountID, req.URL)
		return
	}
	h.forTrial(w, r, req.URL)
}

func (h *ExtractHandler) forAccount(w http.ResponseWriter, r *http.Request, accountID int64, rawURL string) {
	account, err := h.quota.Authorize(accountID)
	if err != nil {
		mapped := classify(err)
		var appErr *api.AppError
		if !errors.As(mapped, &appErr) {
			h.logger.Error("authorize extraction", "account_id", accountID, "error", err)
		}
		api.HandleError(w, mapped)
		return
	}

	job, product, err := h.ledger.Run(r.Context(), accountID, rawURL)
	if err != nil {
		if job == nil || errors.Is(err, ledger.ErrSaveFailed) {
			h.logger.Error("run extraction", "account_id", accountID, "error", err)
			api.HandleError(w, err)
			return
		}
		api.HandleError(w, api.NewUpstreamError(err))
		return
	}

	api.JSON(w, http.StatusOK, accountExtractResponse{
		Success:          true,
		JobID:            job.ID,
		Product:          product,
		IsTrial:          false,
		RemainingCredits: quota.Available(account),
	})
}

func (h *ExtractHandler) forTrial(w http.ResponseWriter, r *http.Request, rawURL string) {
	now := h.now()
	current := trial.Read(h.trials.FromRequest(r), now)
	if current.Remaining <= 0 {
		metrics.ExtractionsTotal.WithLabelValues("trial", "rejected").Inc()
		api.HandleError(w, classify(trial.ErrExhausted))
		return
	}

	start := now
	data, err := h.extractor.Extract(r.Context(), rawURL)
	metrics.ExtractionDuration.Observe(h.now().Sub(start).Seconds())
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("trial", "failed").Inc()
		h.logger.Info("trial extraction failed", "url", rawURL, "error", err)
		api.HandleError(w, api.NewUpstreamError(err))
		return
	}

	next, err := trial.Consume(&current, now)
	if err != nil {
		api.HandleError(w, classify(err))
		return
	}
	metrics.ExtractionsTotal.WithLabelValues("trial", "completed").Inc()

	http.SetCookie(w, h.trials.Cookie(next))
	api.JSON(w, http.StatusOK, trialExtractResponse{
		Success:         true,
		Product:         data,
		IsTrial:         true,
		RemainingTrials: next.Remaining,
	})
}
