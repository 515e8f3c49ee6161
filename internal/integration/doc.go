// Package integration holds end-to-end tests that run the evaluation
// pipeline and read its bundles back through the results API.
package integration
