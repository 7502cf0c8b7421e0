package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// TenantRegistry opens and pools one database handle per tenant. Every tenant
// owns an isolated database (DB_NAME_PREFIX + tenant id); there is no shared
// schema and no cross-tenant query path.
type TenantRegistry struct {
	mu      sync.Mutex
	handles map[string]*gorm.DB
}

var registry = &TenantRegistry{handles: make(map[string]*gorm.DB)}

func GetTenantRegistry() *TenantRegistry {
	return registry
}

func init() {
	// Load env from .env
	godotenv.Load()
	// IMPORTANT (Cloud Run):
	// Do NOT block startup in init() waiting for DB.
	// The container must start listening on $PORT quickly; tenant handles
	// are opened lazily on first use.
}

// Open returns the tenant's database handle, connecting on first use.
func (r *TenantRegistry) Open(tenantId string) (*gorm.DB, error) {
	if strings.TrimSpace(tenantId) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.handles[tenantId]; ok {
		return db, nil
	}

	db, err := openTenantDatabase(tenantId)
	if err != nil {
		return nil, err
	}
	r.handles[tenantId] = db
	return db, nil
}

// Close tears down a single tenant handle (tenant suspension, tests).
func (r *TenantRegistry) Close(tenantId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.handles[tenantId]
	if !ok {
		return nil
	}
	delete(r.handles, tenantId)
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CloseAll closes every pooled handle (graceful shutdown).
func (r *TenantRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantId, db := range r.handles {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		delete(r.handles, tenantId)
	}
}

func openTenantDatabase(tenantId string) (*gorm.DB, error) {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbNamePrefix := os.Getenv("DB_NAME_PREFIX")
	if dbNamePrefix == "" {
		dbNamePrefix = "backoffice_"
	}

	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, dbPort)

	// Cloud Run + Cloud SQL: when DB_HOST is "/cloudsql/<CONNECTION_NAME>",
	// connect using a Unix domain socket provided by Cloud SQL Auth Proxy.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}

	databaseConfig := fmt.Sprintf("%s:%s@%s(%s)/%s%s?multiStatements=true&parseTime=true",
		dbUser,
		dbPassword,
		network,
		address,
		dbNamePrefix,
		tenantId,
	)

	var db *gorm.DB
	var err error
	maxAttempts := intFromEnv("DB_CONNECT_MAX_ATTEMPTS", 5)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err = gorm.Open(mysql.Open(databaseConfig), InitGormConfig())
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect tenant database (tenant=%s attempt=%d): %v; retrying in %s", tenantId, attempt, err, sleep)
		time.Sleep(sleep)
	}
	if err != nil {
		return nil, fmt.Errorf("connect tenant %s: %w", tenantId, err)
	}

	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 10)
		maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 5)
		connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
		connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

		if maxOpen > 0 {
			sqlDB.SetMaxOpenConns(maxOpen)
		}
		if maxIdle >= 0 {
			sqlDB.SetMaxIdleConns(maxIdle)
		}
		if connMaxLife > 0 {
			sqlDB.SetConnMaxLifetime(connMaxLife)
		}
		if connMaxIdle > 0 {
			sqlDB.SetConnMaxIdleTime(connMaxIdle)
		}
	}

	if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("tenant db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	return db, nil
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// InitGormConfig is shared by the MySQL tenant handles and the sqlite test
// stores. TranslateError makes duplicate-key failures portable
// (gorm.ErrDuplicatedKey) across drivers.
func InitGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
		TranslateError: true,
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
