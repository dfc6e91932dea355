package resilience

import (
	"time"

	"github.com/sells-group/rayven/internal/config"
)

// FromStoreConfig builds the store write retry policy from configuration.
// Zero fields keep their defaults.
func FromStoreConfig(cfg config.StoreConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}
	if cfg.RetryMaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(cfg.RetryMaxBackoffMs) * time.Millisecond
	}
	return rc
}
