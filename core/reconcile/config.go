package reconcile

import "time"

// Config holds reconciler settings.
type Config struct {
	// BatchSize caps the writes of one atomic batch.
	BatchSize int `mapstructure:"batch_size" default:"400"`
	// AuditSchedule is the cron expression of the read-only share id audit.
	// Empty disables the scheduled audit.
	AuditSchedule string `mapstructure:"audit_schedule" default:"0 * * * *"`
	// AuditOnStart runs the scheduled audit once as soon as the server starts.
	AuditOnStart bool `mapstructure:"audit_on_start" default:"true"`
	// CacheTTLSeconds lets audits reuse a collection scan; 0 disables caching.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"60"`
}

// CacheTTL returns the audit cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
