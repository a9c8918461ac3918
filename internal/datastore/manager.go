// Package datastore opens the alert store on SQLite or MySQL and owns its schema.
package datastore

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/civicwatch/alertwatch/internal/conf"
	"github.com/civicwatch/alertwatch/internal/datastore/entities"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/logger"
)

// Manager defines the database lifecycle operations.
type Manager interface {
	// Initialize creates or migrates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location for display.
	Path() string
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
	// Close closes the database connection.
	Close() error
}

// SQLiteManager handles an SQLite alert store.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	// DSN overrides the fields above when set.
	DSN string
}

// MySQLManager handles a MySQL alert store.
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// Open selects the manager for settings.Database.Type and initializes the schema.
func Open(settings *conf.DatabaseSettings, log logger.Logger) (Manager, error) {
	var (
		m   Manager
		err error
	)
	switch settings.Type {
	case conf.DatabaseMySQL:
		m, err = NewMySQLManager(&MySQLConfig{
			Host:     settings.MySQL.Host,
			Port:     settings.MySQL.Port,
			Username: settings.MySQL.Username,
			Password: settings.MySQL.Password,
			Database: settings.MySQL.Database,
		}, gormConfig(log, settings.SlowQuery))
	default:
		m, err = NewSQLiteManager(settings.SQLite.Path, gormConfig(log, settings.SlowQuery))
	}
	if err != nil {
		return nil, err
	}

	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// gormConfig routes GORM logging to the datastore module and maps unique
// index violations to gorm.ErrDuplicatedKey.
func gormConfig(log logger.Logger, slowQuery time.Duration) *gorm.Config {
	if log == nil {
		log = logger.Discard()
	}
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log.Module("datastore"), slowQuery),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// NewSQLiteManager opens an SQLite database. A path starting with "file:" is
// used verbatim, which allows shared in-memory databases in tests.
func NewSQLiteManager(path string, cfg *gorm.Config) (*SQLiteManager, error) {
	if cfg == nil {
		cfg = gormConfig(nil, 0)
	}

	dsn := path
	if !strings.HasPrefix(path, "file:") {
		// Immediate transactions take the write lock up front so concurrent
		// vote transactions queue on busy_timeout instead of failing on upgrade.
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON&_txlock=immediate", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, storageError(err, "open-sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageError(err, "get-sql-db")
	}
	// SQLite allows a single writer; one connection serializes transactions in-process.
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteManager{db: db, dbPath: path}, nil
}

// Initialize creates the schema.
func (m *SQLiteManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return storageError(err, "migrate-schema")
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// IsMySQL returns false for SQLite manager.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	return closeDB(m.db)
}

// NewMySQLManager opens a MySQL database with a pooled connection.
func NewMySQLManager(cfg *MySQLConfig, gcfg *gorm.Config) (*MySQLManager, error) {
	if gcfg == nil {
		gcfg = gormConfig(nil, 0)
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	}

	db, err := gorm.Open(mysql.Open(dsn), gcfg)
	if err != nil {
		return nil, storageError(err, "open-mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageError(err, "get-sql-db")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		location: fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database),
	}, nil
}

// Initialize creates the schema.
func (m *MySQLManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return storageError(err, "migrate-schema")
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns host:port/database.
func (m *MySQLManager) Path() string {
	return m.location
}

// IsMySQL returns true for MySQL manager.
func (m *MySQLManager) IsMySQL() bool {
	return true
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	return closeDB(m.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func storageError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}
