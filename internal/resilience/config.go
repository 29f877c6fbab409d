package resilience

import "time"

// ConfigFrom builds a breaker config from the circuit settings. Non-positive values keep
// the defaults.
func ConfigFrom(threshold, cooldownSecs int) Config {
	cfg := DefaultConfig()
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
