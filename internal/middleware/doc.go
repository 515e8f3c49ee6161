// Package middleware holds the HTTP middleware of the results server that
// chi does not provide: request tracing, rate limiting and API security
// headers.
package middleware
