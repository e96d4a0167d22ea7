package config

import (
	"reflect"
	"strings"

	"story-pipeline/core/counter"
	"story-pipeline/core/database"
	"story-pipeline/core/docstore"
	"story-pipeline/core/idempotency"
	"story-pipeline/core/logger"
	"story-pipeline/core/push"
	"story-pipeline/core/reconcile"
	"story-pipeline/core/server"
	"story-pipeline/core/storage"
	"story-pipeline/core/tracing"
	"story-pipeline/feature/stories"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage (MinIO or S3).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds the SQL connection used by the sql document store driver.
	Database database.Config `mapstructure:"database"`
	// DocStore selects the document store backend.
	DocStore docstore.Config `mapstructure:"docstore"`
	// Mongo holds the connection used by the mongo document store driver.
	Mongo docstore.MongoConfig `mapstructure:"mongo"`
	// Redis configures event redelivery suppression.
	Redis idempotency.Config `mapstructure:"redis"`
	// Push configures the notification gateway.
	Push push.Config `mapstructure:"push"`
	// Pipeline holds the ingestion settings.
	Pipeline stories.Config `mapstructure:"pipeline"`
	// Counter configures the share id counter documents.
	Counter counter.Config `mapstructure:"counter"`
	// Reconcile holds reconciler settings.
	Reconcile reconcile.Config `mapstructure:"reconcile"`
	// Tracing configures OpenTelemetry export.
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
