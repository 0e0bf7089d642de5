package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sasswatch/sasswatch-api/internal/app"
	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/users"
)

// Seeds a local SQLite store with the built-in accounts and a few demo users.
func main() {
	path := getenv("SQLITE_PATH", "data/sasswatch.db")
	ctx := context.Background()

	repo, err := users.OpenSQLite(ctx, path)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()

	hasher, err := auth.NewHasher(auth.DefaultCost, 0)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	svc := users.NewService(repo, hasher, app.NewLogger(&app.Config{LogFormat: "text", LogLevel: "warn"}))

	fmt.Println("→ Seeding principals...")
	if err := seedPrincipals(ctx, svc); err != nil {
		log.Fatalf("seed principals: %v", err)
	}
	fmt.Println("→ Seeding resources...")
	if err := seedResources(ctx, repo); err != nil {
		log.Fatalf("seed resources: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedPrincipals(ctx context.Context, svc *users.Service) error {
	principals := []struct {
		user, role, secret string
	}{
		{"root", "root", getenv("SEED_ROOT_SECRET", "root")},
		{"cron", "cron", getenv("SEED_CRON_SECRET", "cron")},
		{"auditor", "audt", "auditor"},
		{"alice", "edit", "alice"},
		{"alice", "view", "alice-view"},
		{"bob", "edit", "bob"},
		{"bob", "read", "bob-read"},
	}
	for _, p := range principals {
		if _, err := svc.PutPrincipal(ctx, p.user, p.role, p.secret); err != nil {
			return fmt.Errorf("%s/%s: %w", p.user, p.role, err)
		}
	}
	return nil
}

func seedResources(ctx context.Context, repo *users.SQLiteRepository) error {
	stmts := []string{
		`INSERT OR IGNORE INTO calendar (id, owner_id) SELECT 1, id FROM users WHERE name = 'alice'`,
		`INSERT OR IGNORE INTO calendar (id, owner_id) SELECT 2, id FROM users WHERE name = 'bob'`,
		`INSERT OR IGNORE INTO agenda (id, owner_id) SELECT 1, id FROM users WHERE name = 'alice'`,
		`INSERT OR IGNORE INTO message (id, owner_id) SELECT 1, id FROM users WHERE name = 'alice'`,
		`INSERT OR IGNORE INTO event (id, calendar_id) VALUES (1, 1)`,
	}
	for _, stmt := range stmts {
		if _, err := repo.DB().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
