package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const templateDB = "royalty_template"

// One container per test binary. The schema is migrated once into a template database
// and every test gets its own copy, so ledger state never leaks between tests.
var cluster struct {
	once  sync.Once
	err   error
	admin *sql.DB
	dsn   *url.URL

	// CREATE DATABASE ... TEMPLATE fails while another copy is in progress.
	mu sync.Mutex
}

func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres-backed test skipped in -short mode")
	}

	cluster.once.Do(func() { cluster.err = startCluster(context.Background()) })
	if cluster.err != nil {
		t.Fatalf("start postgres cluster: %v", cluster.err)
	}

	name := "royalty_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cluster.mu.Lock()
	_, err := cluster.admin.Exec(fmt.Sprintf("CREATE DATABASE %s TEMPLATE %s", name, templateDB))
	cluster.mu.Unlock()
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}

	db, err := sql.Open("postgres", databaseDSN(name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if _, err := cluster.admin.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", name)); err != nil {
			t.Logf("drop test database %s: %v", name, err)
		}
	})

	return db
}

// The container is reaped by testcontainers once the test binary exits.
func startCluster(ctx context.Context) error {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(templateDB),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("run container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("connection string: %w", err)
	}
	cluster.dsn, err = url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("parse connection string: %w", err)
	}

	// The template must have no open sessions before it can be copied.
	tmpl, err := sql.Open("postgres", databaseDSN(templateDB))
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	migrateErr := runMigrations(tmpl)
	tmpl.Close()
	if migrateErr != nil {
		return migrateErr
	}

	cluster.admin, err = sql.Open("postgres", databaseDSN("postgres"))
	if err != nil {
		return fmt.Errorf("open admin: %w", err)
	}
	cluster.admin.SetMaxOpenConns(2)
	return nil
}

func databaseDSN(name string) string {
	u := *cluster.dsn
	u.Path = "/" + name
	return u.String()
}

// runMigrations applies every *.up.sql in name order inside one transaction.
func runMigrations(db *sql.DB) error {
	migrationsDir := findMigrationsDir()

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	if len(upFiles) == 0 {
		return fmt.Errorf("no migrations found in %s", migrationsDir)
	}
	sort.Strings(upFiles)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migrations: %w", err)
	}
	defer tx.Rollback()

	for _, f := range upFiles {
		content, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
	}

	return tx.Commit()
}

// go test runs with the package directory as CWD; walk up to the module root.
func findMigrationsDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for range 10 {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return "migrations"
}
