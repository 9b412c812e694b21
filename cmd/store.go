package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/config"
	"github.com/sells-group/question-bank/internal/db"
	"github.com/sells-group/question-bank/internal/store"
)

// openStore connects the configured backend and applies the schema.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &db.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns})
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "qbank.db"
		}
		st, err = store.NewSQLite(dsn)
	case "memory":
		zap.L().Warn("using in-memory store; nothing will be persisted")
		st = store.NewMemory()
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
