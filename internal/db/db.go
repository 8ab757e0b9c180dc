package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres using the DB_* environment variables and makes
// sure the schema is in place.
func Init() {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)
	Connect(dsn)
	EnsureSchema()
}

// Connect opens the shared pool against the given DSN
func Connect(dsn string) {
	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")
}

// EnsureSchema creates any missing tables, constraints and indexes. Every
// statement is idempotent so running it on each boot is safe.
func EnsureSchema() {
	ensureUsersTable()
	ensureCrowdfundingsTable()
	ensureWalletsTable()
	ensureTransactionsTable()
	ensureServicesTable()
	ensureServiceImagesTable()
	ensureOffersTable()
	ensureServiceInstancesTable()
	ensureCommentsTable()
	ensureMessagesTable()
	ensureNotificationsTable()
}

func ensureUsersTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            bio TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		log.Printf("failed to ensure users table: %v", err)
	}
}

func ensureCrowdfundingsTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS crowdfundings (
            id UUID PRIMARY KEY,
            creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            mygrant_target INTEGER NOT NULL CHECK (mygrant_target > 0),
            status TEXT NOT NULL DEFAULT 'COLLECTING'
                CHECK (status IN ('COLLECTING', 'RECRUITING', 'FINISHED')),
            date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            date_finished TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_crowdfundings_creator ON crowdfundings(creator_id);
    `)
	if err != nil {
		log.Printf("failed to ensure crowdfundings table: %v", err)
	}
}

func ensureWalletsTable() {
	// One wallet per actor: the owner is a user XOR a crowdfunding.
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS wallets (
            id UUID PRIMARY KEY,
            user_id UUID NULL REFERENCES users(id) ON DELETE CASCADE,
            crowdfunding_id UUID NULL REFERENCES crowdfundings(id) ON DELETE CASCADE,
            balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
            escrow BIGINT NOT NULL DEFAULT 0 CHECK (escrow >= 0),
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((user_id IS NULL) <> (crowdfunding_id IS NULL))
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_wallets_user
            ON wallets(user_id) WHERE user_id IS NOT NULL;
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_wallets_crowdfunding
            ON wallets(crowdfunding_id) WHERE crowdfunding_id IS NOT NULL;
    `)
	if err != nil {
		log.Printf("failed to ensure wallets table: %v", err)
	}
}

func ensureTransactionsTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY,
            wallet_id UUID NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
            amount BIGINT NOT NULL,
            type TEXT NOT NULL CHECK (type IN ('credit', 'debit')),
            status TEXT NOT NULL,
            reference UUID NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_wallet_created
            ON transactions(wallet_id, created_at);
    `)
	if err != nil {
		log.Printf("failed to ensure transactions table: %v", err)
	}
}

func ensureServicesTable() {
	// creator_id and crowdfunding_id are mutually exclusive: exactly one set.
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS services (
            id UUID PRIMARY KEY,
            creator_id UUID NULL REFERENCES users(id) ON DELETE CASCADE,
            crowdfunding_id UUID NULL REFERENCES crowdfundings(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            acceptable_radius INTEGER NULL CHECK (acceptable_radius >= 0),
            mygrant_value INTEGER NOT NULL CHECK (mygrant_value > 0),
            service_type TEXT NOT NULL CHECK (service_type IN ('PROVIDE', 'REQUEST')),
            repeatable BOOLEAN NOT NULL DEFAULT FALSE,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((creator_id IS NULL) <> (crowdfunding_id IS NULL))
        );
        CREATE INDEX IF NOT EXISTS idx_services_active_created
            ON services(date_created DESC) WHERE deleted = FALSE;
        CREATE INDEX IF NOT EXISTS idx_services_creator ON services(creator_id);
        CREATE INDEX IF NOT EXISTS idx_services_crowdfunding ON services(crowdfunding_id);
    `)
	if err != nil {
		log.Printf("failed to ensure services table: %v", err)
	}
}

func ensureServiceImagesTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS service_images (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            filename TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (service_id, filename)
        )`)
	if err != nil {
		log.Printf("failed to ensure service_images table: %v", err)
	}
}

func ensureOffersTable() {
	// The partial unique indexes are the authority on offer uniqueness: at most
	// one non-declined offer per (service, candidate) pair, one index per
	// candidate arm. Concurrent inserts race in the database, not in handlers.
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS offers (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            candidate_user_id UUID NULL REFERENCES users(id) ON DELETE CASCADE,
            candidate_crowdfunding_id UUID NULL REFERENCES crowdfundings(id) ON DELETE CASCADE,
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending', 'accepted', 'declined')),
            date_proposed TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            date_scheduled TIMESTAMP WITH TIME ZONE NULL,
            CHECK ((candidate_user_id IS NULL) <> (candidate_crowdfunding_id IS NULL))
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_offers_service_user
            ON offers(service_id, candidate_user_id)
            WHERE candidate_user_id IS NOT NULL AND status <> 'declined';
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_offers_service_crowdfunding
            ON offers(service_id, candidate_crowdfunding_id)
            WHERE candidate_crowdfunding_id IS NOT NULL AND status <> 'declined';
        CREATE INDEX IF NOT EXISTS idx_offers_service_status ON offers(service_id, status);
    `)
	if err != nil {
		log.Printf("failed to ensure offers table: %v", err)
	}
}

func ensureServiceInstancesTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS service_instances (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            offer_id UUID NOT NULL REFERENCES offers(id) ON DELETE CASCADE,
            candidate_user_id UUID NULL REFERENCES users(id) ON DELETE CASCADE,
            candidate_crowdfunding_id UUID NULL REFERENCES crowdfundings(id) ON DELETE CASCADE,
            date_scheduled TIMESTAMP WITH TIME ZONE NOT NULL,
            creator_rating INTEGER NULL CHECK (creator_rating BETWEEN 1 AND 5),
            candidate_rating INTEGER NULL CHECK (candidate_rating BETWEEN 1 AND 5),
            mygrants_released BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((candidate_user_id IS NULL) <> (candidate_crowdfunding_id IS NULL)),
            UNIQUE (offer_id)
        );
        CREATE INDEX IF NOT EXISTS idx_instances_service ON service_instances(service_id);
    `)
	if err != nil {
		log.Printf("failed to ensure service_instances table: %v", err)
	}
}

func ensureCommentsTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS comments (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL REFERENCES services(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            message TEXT NOT NULL,
            in_reply_to UUID NULL REFERENCES comments(id) ON DELETE SET NULL,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            date_posted TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_comments_service_posted
            ON comments(service_id, date_posted);
    `)
	if err != nil {
		log.Printf("failed to ensure comments table: %v", err)
	}
}

func ensureMessagesTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            date_sent TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_messages_sender_sent ON messages(sender_id, date_sent);
        CREATE INDEX IF NOT EXISTS idx_messages_recipient_sent ON messages(recipient_id, date_sent);
        CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id) WHERE read_at IS NULL;
    `)
	if err != nil {
		log.Printf("failed to ensure messages table: %v", err)
	}
}

func ensureNotificationsTable() {
	_, err := Conn.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference UUID NULL,
            metadata JSONB NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
	if err != nil {
		log.Printf("failed to ensure notifications table: %v", err)
	}
}
