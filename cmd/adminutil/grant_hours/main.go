package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mygrant-hub/mygrant-api/internal/db"
)

// grant_hours credits mygrant hours to a user's wallet by email.
// Usage:
//   go run cmd/adminutil/grant_hours/main.go -email user@example.com -hours 5
func main() {
	email := flag.String("email", "", "Email of the user to credit")
	hours := flag.Int64("hours", 0, "Number of mygrant hours to credit")
	flag.Parse()

	if *email == "" || *hours <= 0 {
		log.Fatalf("usage: go run cmd/adminutil/grant_hours/main.go -email user@example.com -hours 5")
	}

	// Initialize DB from environment variables
	db.Init()

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		log.Fatalf("failed to start transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	var walletID string
	err = tx.QueryRow(ctx, `
        SELECT w.id FROM wallets w
        JOIN users u ON u.id = w.user_id
        WHERE u.email = $1
        FOR UPDATE
    `, *email).Scan(&walletID)
	if err != nil {
		log.Fatalf("no wallet found for email %s: %v", *email, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $1 WHERE id = $2`, *hours, walletID); err != nil {
		log.Fatalf("failed to credit wallet: %v", err)
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO transactions (id, wallet_id, amount, type, status)
        VALUES ($1, $2, $3, 'credit', 'admin_grant')
    `, uuid.New().String(), walletID, *hours); err != nil {
		log.Fatalf("failed to record transaction: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit failed: %v", err)
	}

	fmt.Printf("Credited %d hours to %s.\n", *hours, *email)
}
