package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDB holds the client and the selected database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// ConnectMongo dials the document store and verifies it with a ping
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, log *zap.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("🍃 Connected to MongoDB", zap.String("database", cfg.Database))

	return &MongoDB{
		Client:   client,
		Database: client.Database(cfg.Database),
	}, nil
}

// Close disconnects the client
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
