package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const (
	testDatabaseUser     = "postgres"
	testDatabasePassword = "postgres"
	testDatabaseName     = "test_db"
)

// DatabaseConfiguration holds the postgres connection settings, read from the
// environment (a .env file is loaded when present).
type DatabaseConfiguration struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// NewDatabaseConfiguration reads the database configuration from the
// environment.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	config, err := env.ParseAs[DatabaseConfiguration]()
	if err != nil {
		return nil, NewError("database configuration parse", err)
	}
	return &config, nil
}

// Database wraps an open postgres connection together with its logger.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens and pings the configured postgres database. Connection
// failures are fatal, callers get a ready to use database back.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	psqlInfo := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		log.Panicf("error opening database %v: %v", name, err)
	}

	for attempt := 1; attempt <= 5; attempt++ {
		err = db.Ping()
		if err == nil {
			break
		}
		logger.Warn(
			"Database not reachable yet",
			slog.String("database", name),
			slog.Int("attempt", attempt),
		)
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		log.Panicf("error connecting to database %v: %v", name, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", slog.String("database", name))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	if d.Instance != nil {
		return d.Instance.Close()
	}
	return nil
}

// NewTestDatabase opens a database with a debug level logger, intended for
// tests running against a test container.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	opts := PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	logger := slog.New(NewPrettyHandler(os.Stdout, opts))
	return NewDatabase("test", config, logger)
}

// SetTestDatabaseConfigEnvs points the database configuration at the test
// container listening on the given port.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_USER", testDatabaseUser)
	t.Setenv("DB_PASSWORD", testDatabasePassword)
	t.Setenv("DB_NAME", testDatabaseName)
	t.Setenv("DB_SSLMODE", "disable")
}
