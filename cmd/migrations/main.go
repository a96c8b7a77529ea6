package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/vncsmyrnk/pollstream/internal/adapters/repository/postgres"
)

// Usage: migrations [name]. Without a name every up migration is applied;
// with one, only the matching file runs (e.g. "create_polls.down").
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("DATABASE_URL is required.")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if len(os.Args) < 2 {
		err = postgres.Migrate(ctx, db)
	} else {
		err = postgres.MigrateNamed(ctx, db, os.Args[1])
	}
	if err != nil {
		log.Fatalf("Failed to execute migrations: %v", err)
	}

	fmt.Println("Migrations executed successfully.")
}
