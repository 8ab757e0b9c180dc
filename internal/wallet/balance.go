package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

// Balance returns the acting wallet's balance and escrowed hours. With
// ?crowdfunding_id= set it reports the project wallet instead, provided the
// caller runs that project.
// GET /wallet/balance
func Balance(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	act, err := actor.Resolve(c.Request().Context(), uid, c.QueryParam("crowdfunding_id"))
	if err != nil {
		switch {
		case errors.Is(err, actor.ErrNotFound):
			return httperr.NotFound(c, "crowdfunding not found")
		case errors.Is(err, actor.ErrForbidden):
			return httperr.Forbidden(c, "not the crowdfunding's creator")
		default:
			return httperr.Internal(c, "could not resolve actor")
		}
	}

	userID, crowdfundingID := act.Columns()
	var balance, escrow int64
	err = db.Conn.QueryRow(c.Request().Context(),
		`SELECT balance, escrow FROM wallets
         WHERE user_id IS NOT DISTINCT FROM $1
           AND crowdfunding_id IS NOT DISTINCT FROM $2`,
		userID, crowdfundingID,
	).Scan(&balance, &escrow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "wallet not found")
		}
		return httperr.Internal(c, "failed to fetch wallet")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"owner_kind": act.Kind,
		"owner_id":   act.ID,
		"balance":    balance,
		"escrow":     escrow,
	})
}

// Transactions returns the acting wallet's ledger, newest first.
// GET /wallet/transactions
func Transactions(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	act, err := actor.Resolve(c.Request().Context(), uid, c.QueryParam("crowdfunding_id"))
	if err != nil {
		switch {
		case errors.Is(err, actor.ErrNotFound):
			return httperr.NotFound(c, "crowdfunding not found")
		case errors.Is(err, actor.ErrForbidden):
			return httperr.Forbidden(c, "not the crowdfunding's creator")
		default:
			return httperr.Internal(c, "could not resolve actor")
		}
	}

	userID, crowdfundingID := act.Columns()
	rows, err := db.Conn.Query(c.Request().Context(),
		`SELECT t.id, t.amount, t.type, t.status, t.reference::text, t.created_at
         FROM transactions t
         JOIN wallets w ON w.id = t.wallet_id
         WHERE w.user_id IS NOT DISTINCT FROM $1
           AND w.crowdfunding_id IS NOT DISTINCT FROM $2
         ORDER BY t.created_at DESC`,
		userID, crowdfundingID,
	)
	if err != nil {
		return httperr.Internal(c, "failed to fetch transactions")
	}
	defer rows.Close()

	type entry struct {
		ID        string    `json:"id"`
		Amount    int64     `json:"amount"`
		Type      string    `json:"type"`
		Status    string    `json:"status"`
		Reference *string   `json:"reference,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	entries := []entry{}
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.ID, &e.Amount, &e.Type, &e.Status, &e.Reference, &e.CreatedAt); err != nil {
			return httperr.Internal(c, "failed to parse transaction record")
		}
		entries = append(entries, e)
	}

	return c.JSON(http.StatusOK, echo.Map{"transactions": entries})
}
