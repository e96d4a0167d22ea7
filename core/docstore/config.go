package docstore

import (
	"context"
	"fmt"

	"story-pipeline/core/database"

	"go.uber.org/zap"
)

// Supported document store drivers.
const (
	DriverMemory = "memory"
	DriverSQL    = "sql"
	DriverMongo  = "mongo"
)

// Config selects and tunes the document store.
type Config struct {
	// Driver is one of memory, sql or mongo.
	Driver string `mapstructure:"driver" default:"mongo"`
	// MaxAttempts bounds how often a conflicting transaction is re-run.
	MaxAttempts int `mapstructure:"max_attempts" default:"5"`
}

// Open builds the store selected by cfg. The sql driver connects with dbCfg,
// the mongo driver with mongoCfg.
func Open(ctx context.Context, cfg Config, dbCfg database.Config, mongoCfg MongoConfig, log *zap.Logger) (Store, error) {
	opts := []Option{WithMaxAttempts(cfg.MaxAttempts)}
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(opts...), nil
	case DriverSQL:
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, err
		}
		store, err := NewSQL(db, opts...)
		if err != nil {
			return nil, err
		}
		if err := store.Verify(); err != nil {
			return nil, err
		}
		return store, nil
	case DriverMongo, "":
		store, err := ConnectMongo(ctx, mongoCfg, log, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported document store driver: %s", cfg.Driver)
	}
}
