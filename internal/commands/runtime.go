package commands

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	constants "logamizer/config"
	"logamizer/internal/config"
	"logamizer/internal/queue"
	"logamizer/internal/store"
)

// openStore connects to the configured PostgreSQL database.
func openStore(cfg *config.Config) (store.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("database_url is not configured, run 'logamizer set database_url=postgres://...'")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return store.NewSQL(db), db, nil
}

// openBlobs opens the filesystem blob store rooted at the configured
// directory, defaulting to ~/.logamizer/blobs.
func openBlobs(cfg *config.Config) (store.BlobStore, error) {
	root := cfg.BlobDir
	if root == "" {
		root = os.Getenv("HOME") + constants.CONFIG_DIR_NAME + "/blobs"
	}
	return store.NewFileBlobStore(root)
}

// openQueue connects to redis and verifies the connection.
func openQueue(cfg *config.Config) (*queue.Queue, error) {
	q := queue.New(cfg.RedisAddr)
	return q, nil
}
