package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
)

type Database struct {
	DB *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	log.Info("Database connected")
	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// Gorm wraps the shared connection pool in a gorm session that translates
// driver errors (unique violations become gorm.ErrDuplicatedKey).
func (d *Database) Gorm() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: d.DB}), Config())
	if err != nil {
		return nil, fmt.Errorf("error opening gorm session: %w", err)
	}
	return db, nil
}

// Config is the gorm configuration shared by every dialect the service runs on.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(apexWriter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Report{},
		&models.Vote{},
		&models.RateLimit{},
		&models.StatusEvent{},
	)
	if err != nil {
		return fmt.Errorf("error migrating tables: %w", err)
	}
	log.Info("Database migrations completed")
	return nil
}

var constraints = []string{
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'reports_status_check') THEN
    ALTER TABLE reports ADD CONSTRAINT reports_status_check CHECK (status IN ('new', 'in_progress', 'resolved'));
  END IF;
END $$;`,
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'reports_urgency_score_check') THEN
    ALTER TABLE reports ADD CONSTRAINT reports_urgency_score_check CHECK (urgency_score BETWEEN 50 AND 100);
  END IF;
END $$;`,
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'users_role_check') THEN
    ALTER TABLE users ADD CONSTRAINT users_role_check CHECK (role IN ('user', 'admin'));
  END IF;
END $$;`,
}

// EnsureConstraints adds the postgres CHECK constraints that gorm tags cannot express.
func (d *Database) EnsureConstraints(ctx context.Context) error {
	for _, stmt := range constraints {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating constraints: %w", err)
		}
	}
	log.Info("Database constraints created/verified")
	return nil
}

// Health checks the health of the database connection by pinging the database.
func (d *Database) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := d.DB.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := d.DB.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)

	return stats
}

type apexWriter struct{}

func (apexWriter) Printf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
