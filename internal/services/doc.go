// Package services sits between the HTTP handlers and the persisted run
// bundles.
//
// # Available Services
//
//	- ResultsService: lists runs and answers record and summary queries
//	  over the bundles in the results directory
//	- HealthService: liveness, readiness and version reporting
//
// # Error Handling
//
// Services return sentinel errors that handlers map to API problems:
//
//	- ErrRunNotFound when no bundle exists for a run ID
//	- ErrInvalidRunID when the ID is not a UUID
//	- *FilterError when a record filter names an unknown key value
//
// Context cancellation is checked before any bundle is read.
package services
