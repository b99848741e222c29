// cmd/seeder/main.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/roshaldsouza/Email-Scheduler/internal/db"
)

// Bootstraps the Postgres schema and, with SEED_DEMO=true, inserts a demo
// campaign with a few recipients so the listings have something to show.
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Exec(db.Schema); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}
	fmt.Println("Schema created")

	if os.Getenv("SEED_DEMO") == "true" {
		if err := seedDemo(conn); err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
		fmt.Println("Demo campaign seeded")
	}

	fmt.Println("Database seeding completed successfully!")
}

func seedDemo(conn *sql.DB) error {
	campaignID := uuid.NewString()
	start := time.Now().Add(time.Minute)

	_, err := conn.Exec(`
        INSERT INTO campaigns (id, owner_email, from_email, subject, body, status, scheduled_at, delay_between_ms, hourly_limit)
        VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, 1000, 50)
    `, campaignID, "demo@example.com", "noreply@example.com",
		"Welcome!", "<p>Hello from the demo campaign.</p>", start)
	if err != nil {
		return err
	}

	recipients := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	for i, to := range recipients {
		_, err := conn.Exec(`
            INSERT INTO recipient_jobs (id, campaign_id, to_email, status, scheduled_at)
            VALUES ($1, $2, $3, 'scheduled', $4)
        `, uuid.NewString(), campaignID, to, start.Add(time.Duration(i)*time.Second))
		if err != nil {
			return err
		}
	}
	return nil
}
