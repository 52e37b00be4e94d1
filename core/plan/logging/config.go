package logging

import "fmt"

// Config selects the plan log backend.
type Config struct {
	Backend    string `json:"backend"` // "", "jsonl", "rotating" or "sqlite"
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks the backend name and path.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return nil
	case "jsonl", "rotating", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("plan_log: path required for backend %s", c.Backend)
		}
		return nil
	}
	return fmt.Errorf("plan_log: unknown backend %q", c.Backend)
}

// Open creates the configured store. It returns nil when logging is off.
func Open(c Config) (LogStore, error) {
	switch c.Backend {
	case "":
		return nil, nil
	case "jsonl":
		return NewJSONLStore(c.Path)
	case "rotating":
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(c.Path)
	}
	return nil, fmt.Errorf("plan_log: unknown backend %q", c.Backend)
}
