// Package config loads and validates the nowcast configuration.
//
// # Configuration Sources
//
// Configuration is layered in this order, later sources winning:
//
//  1. Default() values
//  2. A YAML file passed to Load
//  3. Environment variables prefixed NOWCAST_
//
// Environment variables follow the section and field names:
//
//	NOWCAST_RUN_START_DATE=2000-01-01
//	NOWCAST_RUN_HORIZONS=p1,p2,p3
//	NOWCAST_SELECTION_POLICY=elasticnet
//	NOWCAST_CACHE_BACKEND=sqlite
//	NOWCAST_LOGGING_LEVEL=debug
//
// # Validation
//
// Load validates struct tags with validator/v10 and then the domain rules:
// date ordering, the minimum lag depth, the release mapping, horizons
// within the mapping, lag kind, stationarity window policy, imputation
// method and selection policy. Every failure is a configuration error from
// internal/errors, returned before any data is read.
//
// # Paths
//
// Relative directories in the paths section are resolved against
// paths.base_dir, which defaults to the working directory.
package config
