package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/auth"
	"github.com/dukerupert/shopgrab/internal/export"
	"github.com/dukerupert/shopgrab/internal/ledger"
	"github.com/dukerupert/shopgrab/internal/model"
	"github.com/dukerupert/shopgrab/internal/quota"
	"github.com/dukerupert/shopgrab/internal/store"
)

// AccountHandler serves the signed-in views of an account: quota, history
// and exports.
type AccountHandler struct {
	quota    *quota.Service
	ledger   *ledger.Ledger
	jobs     *store.JobStore
	products *store.ProductStore
	logger   *slog.Logger
}

func NewAccountHandler(qs *quota.Service, l *ledger.Ledger, js *store.JobStore, ps *store.ProductStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		quota:    qs,
		ledger:   l,
		jobs:     js,
		products: ps,
		logger:   logger,
	}
}

type creditsResponse struct {
	Success             bool       `json:"success"`
	Credits             int        `json:"credits"`
	SubscriptionType    string     `json:"subscriptionType"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate"`
	MonthlyQuota        int        `json:"monthlyQuota"`
	MonthlyUsed         int        `json:"monthlyUsed"`
	LastFreeReset       time.Time  `json:"lastFreeReset"`
	TotalCreditsUsed    int        `json:"totalCreditsUsed"`
}

// Credits serves GET /api/credits.
func (h *AccountHandler) Credits(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())
	a, err := h.quota.Status(accountID)
	if err != nil {
		if errors.Is(err, quota.ErrAccountNotFound) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		h.logger.Error("quota status", "account_id", accountID, "error", err)
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, creditsResponse{
		Success:             true,
		Credits:             quota.Available(a),
		SubscriptionType:    a.SubscriptionType,
		SubscriptionEndDate: a.SubscriptionEndDate,
		MonthlyQuota:        a.MonthlyQuota,
		MonthlyUsed:         a.MonthlyUsed,
		LastFreeReset:       a.LastFreeReset,
		TotalCreditsUsed:    a.TotalCreditsUsed,
	})
}

type historyResponse struct {
	Success bool                  `json:"success"`
	Jobs    []model.ExtractionJob `json:"jobs"`
}

// History serves GET /api/history.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())
	jobs, err := h.ledger.History(accountID)
	if err != nil {
		h.logger.Error("job history", "account_id", accountID, "error", err)
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, historyResponse{Success: true, Jobs: jobs})
}

// Export serves GET /api/jobs/{id}/export as a JSON or CSV download.
func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		api.HandleError(w, api.NewValidationError("format must be json or csv"))
		return
	}

	job, err := h.jobs.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get job", "error", err)
		api.HandleError(w, err)
		return
	}
	if job == nil || job.AccountID != accountID {
		api.HandleError(w, api.NewNotFoundError("job not found"))
		return
	}
	product, err := h.products.GetByJobID(job.ID)
	if err != nil {
		h.logger.Error("get product", "job_id", job.ID, "error", err)
		api.HandleError(w, err)
		return
	}
	if product == nil {
		api.HandleError(w, api.NewNotFoundError("job has no product"))
		return
	}

	data := &product.ProductData
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(data.Title, format)+`"`)
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = export.CSV(w, data)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = export.JSON(w, data)
	}
	if err != nil {
		h.logger.Error("write export", "job_id", job.ID, "format", format, "error", err)
	}
}
