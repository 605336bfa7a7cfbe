package handler

import (
	"net/http"
	"time"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/trial"
)

type TrialHandler struct {
	codec *trial.Codec
	now   func() time.Time
}

func NewTrialHandler(codec *trial.Codec) *TrialHandler {
	return &TrialHandler{codec: codec, now: time.Now}
}

type trialStatusResponse struct {
	Success   bool      `json:"success"`
	Remaining int       `json:"remaining"`
	Max       int       `json:"max"`
	LastReset time.Time `json:"lastReset"`
}

// Status serves GET /api/trial. A reset window is reported but not written back.
func (h *TrialHandler) Status(w http.ResponseWriter, r *http.Request) {
	c := trial.Read(h.codec.FromRequest(r), h.now())
	api.JSON(w, http.StatusOK, trialStatusResponse{
		Success:   true,
		Remaining: c.Remaining,
		Max:       trial.Max,
		LastReset: c.LastReset,
	})
}

// Consume serves POST /api/trial.
func (h *TrialHandler) Consume(w http.ResponseWriter, r *http.Request) {
	next, err := trial.Consume(h.codec.FromRequest(r), h.now())
	if err != nil {
		api.HandleError(w, classify(err))
		return
	}
	http.SetCookie(w, h.codec.Cookie(next))
	api.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"remaining": next.Remaining,
	})
}
