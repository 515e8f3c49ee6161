package config

import "time"

// Application constants
const (
	AppName    = "nowcast"
	AppVersion = "1.0.0"

	// Default file names inside the paths directories
	DefaultConfigFile = "nowcast.yaml"
	DefaultLogFile    = "nowcast.log"

	// HTTP API limits
	DefaultRecordLimit = 10000
	DefaultHTTPTimeout = 30 * time.Second

	// Stage timeouts
	DefaultRunTimeout = 2 * time.Hour
)
