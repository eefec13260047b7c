package database

import (
	"context"

	"github.com/hybrid-bistoon/anbar/internal/config"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"go.uber.org/zap"
)

// OpenStore connects the backend selected by DB_DRIVER and wraps it in a
// repository. Closing the store releases the connection and, for the
// embedded database, stops the server.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.Database.Driver == config.DriverMongo {
		m, err := ConnectMongo(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, err
		}
		return repository.NewMongoStore(m.Database, m.Close), nil
	}

	db, err := Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db.DB, db.Close), nil
}
