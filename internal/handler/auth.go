package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/shopgrab/internal/api"
	"github.com/dukerupert/shopgrab/internal/middleware"
	"github.com/dukerupert/shopgrab/internal/store"
)

const sessionMaxAge = 90 * 24 * 60 * 60

// Mailer delivers sign-in links.
type Mailer interface {
	Configured() bool
	SendMagicLink(toEmail, token string) error
}

type AuthHandler struct {
	accounts     *store.AccountStore
	sessions     *store.SessionStore
	magicLinks   *store.MagicLinkStore
	mailer       Mailer
	secureCookie bool
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewAuthHandler(
	as *store.AccountStore,
	ss *store.SessionStore,
	mls *store.MagicLinkStore,
	mailer Mailer,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts:     as,
		sessions:     ss,
		magicLinks:   mls,
		mailer:       mailer,
		secureCookie: secureCookie,
		validate:     validator.New(),
		logger:       logger,
	}
}

type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Login issues a magic link. The response is the same whether or not an
// account exists for the address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("a valid email is required"))
		return
	}

	ml, err := h.magicLinks.Create(req.Email)
	if err != nil {
		h.logger.Error("create magic link", "error", err)
		api.HandleError(w, err)
		return
	}

	if h.mailer != nil && h.mailer.Configured() {
		if err := h.mailer.SendMagicLink(req.Email, ml.Token); err != nil {
			h.logger.Error("send magic link", "error", err)
		}
	} else {
		h.logger.Info("magic link token generated", "email", req.Email, "token", ml.Token)
	}

	api.JSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "check your email for a sign-in link",
	})
}

// Verify redeems a magic link, creating the account on first sign-in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		api.HandleError(w, api.NewBadRequestError("invalid or expired link"))
		return
	}

	ml, err := h.magicLinks.Redeem(token)
	if err != nil {
		h.logger.Error("redeem magic link", "error", err)
		api.HandleError(w, err)
		return
	}
	if ml == nil {
		api.HandleError(w, api.NewBadRequestError("invalid or expired link"))
		return
	}

	account, err := h.accounts.GetByEmail(ml.Email)
	if err != nil {
		h.logger.Error("get account", "error", err)
		api.HandleError(w, err)
		return
	}
	if account == nil {
		account, err = h.accounts.Create(ml.Email)
		if err != nil {
			h.logger.Error("create account", "error", err)
			api.HandleError(w, err)
			return
		}
		h.logger.Info("account created", "account_id", account.ID)
	}

	sess, err := h.sessions.Create(account.ID)
	if err != nil {
		h.logger.Error("create session", "account_id", account.ID, "error", err)
		api.HandleError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		sess, err := h.sessions.GetByToken(cookie.Value)
		if err == nil && sess != nil {
			if err := h.sessions.Delete(sess.ID); err != nil {
				h.logger.Error("delete session", "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
