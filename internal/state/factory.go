package state

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ETAnderson/pricetrail/internal/db"
)

type FactoryConfig struct {
	Backend     string
	FileDir     string
	MySQLDSN    string
	PostgresDSN string
}

type FactoryResult struct {
	Store Store
	DB    *sql.DB       // only set for mysql
	Pool  *pgxpool.Pool // only set for postgres
}

func (r FactoryResult) Close() {
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}

func NewStore(ctx context.Context, cfg FactoryConfig) (FactoryResult, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "memory"
	}

	switch backend {
	case "memory":
		return FactoryResult{Store: NewMemoryStore()}, nil

	case "file":
		if strings.TrimSpace(cfg.FileDir) == "" {
			return FactoryResult{}, errors.New("FILE_DIR is required when STATE_BACKEND=file")
		}
		fs, err := NewFileStore(cfg.FileDir)
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Store: fs}, nil

	case "mysql":
		if strings.TrimSpace(cfg.MySQLDSN) == "" {
			return FactoryResult{}, errors.New("DB_DSN is required when STATE_BACKEND=mysql")
		}

		sqlDB, err := db.Open(db.Config{DSN: cfg.MySQLDSN})
		if err != nil {
			return FactoryResult{}, err
		}

		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := sqlDB.PingContext(c); err != nil {
			_ = sqlDB.Close()
			return FactoryResult{}, err
		}

		return FactoryResult{Store: NewMySQLStore(sqlDB), DB: sqlDB}, nil

	case "postgres":
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return FactoryResult{}, errors.New("POSTGRES_DSN is required when STATE_BACKEND=postgres")
		}

		pool, err := db.OpenPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return FactoryResult{}, err
		}

		return FactoryResult{Store: NewPostgresStore(pool), Pool: pool}, nil

	default:
		return FactoryResult{}, errors.New("unknown STATE_BACKEND (use memory, file, mysql or postgres)")
	}
}
