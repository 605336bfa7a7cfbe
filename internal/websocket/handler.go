package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/shopgrab/internal/auth"
)

// HandleJobs upgrades an authenticated request and streams the account's
// job events until the connection closes.
func HandleJobs(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := auth.AccountID(r.Context())
		if accountID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err, "account_id", accountID)
			return
		}

		NewClient(hub, conn, accountID).Run(r.Context())
	}
}
