package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
)

// ErrInsufficientBalance means the payer cannot cover the hold.
var ErrInsufficientBalance = errors.New("insufficient mygrant balance")

// CreateTx opens a wallet for the given actor with a starting balance, inside
// the caller's transaction. Used at signup and at crowdfunding creation.
func CreateTx(ctx context.Context, tx pgx.Tx, owner actor.Actor, initial int64) (string, error) {
	userID, crowdfundingID := owner.Columns()
	walletID := uuid.New().String()
	_, err := tx.Exec(ctx,
		`INSERT INTO wallets (id, user_id, crowdfunding_id, balance)
         VALUES ($1, $2, $3, $4)`,
		walletID, userID, crowdfundingID, initial,
	)
	if err != nil {
		return "", err
	}
	if initial > 0 {
		if err := recordTx(ctx, tx, walletID, initial, "credit", "signup_bonus", nil); err != nil {
			return "", err
		}
	}
	return walletID, nil
}

// lockWallet loads the actor's wallet id under FOR UPDATE.
func lockWallet(ctx context.Context, tx pgx.Tx, owner actor.Actor) (string, error) {
	userID, crowdfundingID := owner.Columns()
	var walletID string
	err := tx.QueryRow(ctx,
		`SELECT id FROM wallets
         WHERE user_id IS NOT DISTINCT FROM $1
           AND crowdfunding_id IS NOT DISTINCT FROM $2
         FOR UPDATE`,
		userID, crowdfundingID,
	).Scan(&walletID)
	return walletID, err
}

// HoldTx moves amount hours from the payer's balance into escrow. Fails with
// ErrInsufficientBalance when the balance cannot cover it.
func HoldTx(ctx context.Context, tx pgx.Tx, payer actor.Actor, amount int64, reference string) error {
	walletID, err := lockWallet(ctx, tx, payer)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1, escrow = escrow + $1
         WHERE id = $2 AND balance >= $1`,
		amount, walletID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	return recordTx(ctx, tx, walletID, amount, "debit", "escrow_hold", &reference)
}

// ReleaseTx moves a previously held amount out of the payer's escrow into the
// payee's balance. Called exactly once per instance, on its first rating.
func ReleaseTx(ctx context.Context, tx pgx.Tx, payer, payee actor.Actor, amount int64, reference string) error {
	payerWallet, err := lockWallet(ctx, tx, payer)
	if err != nil {
		return err
	}
	payeeWallet, err := lockWallet(ctx, tx, payee)
	if err != nil {
		return err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE wallets SET escrow = escrow - $1 WHERE id = $2 AND escrow >= $1`,
		amount, payerWallet,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $1 WHERE id = $2`,
		amount, payeeWallet,
	); err != nil {
		return err
	}

	if err := recordTx(ctx, tx, payerWallet, amount, "debit", "escrow_release", &reference); err != nil {
		return err
	}
	return recordTx(ctx, tx, payeeWallet, amount, "credit", "mygrants_received", &reference)
}

func recordTx(ctx context.Context, tx pgx.Tx, walletID string, amount int64, txType, status string, reference *string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, wallet_id, amount, type, status, reference)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), walletID, amount, txType, status, reference,
	)
	return err
}
