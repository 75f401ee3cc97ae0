package database

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the configured driver.
func Open(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMySQL:
		return NewMySQLDB(cfg)
	case DriverSQLite:
		return NewSQLiteDB(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

// NewSQLiteDB opens an embedded database. Use ":memory:" for tests.
func NewSQLiteDB(path string) (*sqlx.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps writes serialized and an in-memory
	// database shared between statements.
	db.SetMaxOpenConns(1)

	logger.Infof("Opened SQLite database at %s", path)
	return db, nil
}

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS message_logs (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	recipient_name VARCHAR(255) NOT NULL,
	recipient_phone VARCHAR(50) NULL,
	recipient_email VARCHAR(255) NULL,
	subject VARCHAR(500) NULL,
	message_content TEXT NOT NULL,
	channel VARCHAR(20) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	error_message TEXT NULL,
	attachments TEXT NULL,
	batch_id VARCHAR(64) NULL,
	sent_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	INDEX idx_message_logs_batch_email (batch_id, recipient_email),
	INDEX idx_message_logs_batch_phone (batch_id, recipient_phone),
	INDEX idx_message_logs_status (status),
	INDEX idx_message_logs_sent_at (sent_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const mysqlOutcomesSchema = `
CREATE TABLE IF NOT EXISTS message_channel_outcomes (
	message_id BIGINT NOT NULL,
	channel VARCHAR(20) NOT NULL,
	status VARCHAR(20) NOT NULL,
	error_message TEXT NULL,
	recorded_at DATETIME(6) NOT NULL,
	PRIMARY KEY (message_id, channel),
	CONSTRAINT fk_channel_outcomes_message FOREIGN KEY (message_id) REFERENCES message_logs (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS message_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_name TEXT NOT NULL,
		recipient_phone TEXT NULL,
		recipient_email TEXT NULL,
		subject TEXT NULL,
		message_content TEXT NOT NULL,
		channel TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NULL,
		attachments TEXT NULL,
		batch_id TEXT NULL,
		sent_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_logs_batch_email ON message_logs (batch_id, recipient_email)`,
	`CREATE INDEX IF NOT EXISTS idx_message_logs_batch_phone ON message_logs (batch_id, recipient_phone)`,
	`CREATE INDEX IF NOT EXISTS idx_message_logs_status ON message_logs (status)`,
	`CREATE INDEX IF NOT EXISTS idx_message_logs_sent_at ON message_logs (sent_at)`,
	`CREATE TABLE IF NOT EXISTS message_channel_outcomes (
		message_id INTEGER NOT NULL REFERENCES message_logs (id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NULL,
		recorded_at DATETIME NOT NULL,
		PRIMARY KEY (message_id, channel)
	)`,
}

func RunMigrations(db *sqlx.DB) error {
	statements := []string{mysqlSchema, mysqlOutcomesSchema}
	if db.DriverName() == DriverSQLite {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM message_logs")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d message logs, skipping seed", count)
		return nil
	}

	now := time.Now().UTC()
	testRows := []struct {
		name    string
		phone   any
		email   any
		channel string
		status  string
		errMsg  any
	}{
		{"Ana Gomez", "+573001234567", "ana@example.com", "both", "sent", nil},
		{"Carlos Ruiz", "+573009876543", nil, "whatsapp", "sent", nil},
		{"Lucia Perez", nil, "lucia@example.com", "email", "pending", nil},
		{"Mateo Diaz", nil, nil, "whatsapp", "failed", "missing phone number"},
		{"Sofia Rojas", "+573005556677", nil, "sms", "sent", nil},
	}

	for _, row := range testRows {
		_, err := db.Exec(
			`INSERT INTO message_logs
				(recipient_name, recipient_phone, recipient_email, message_content, channel, status, error_message, attachments, batch_id, sent_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, '[]', 'seed-batch', ?, ?)`,
			row.name, row.phone, row.email, "Hola "+row.name+", este es un mensaje de prueba.",
			row.channel, row.status, row.errMsg, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded %d test message logs", len(testRows))
	return nil
}
