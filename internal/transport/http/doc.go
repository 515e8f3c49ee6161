// Package http exposes persisted nowcast runs over a read-only JSON API.
//
// Handlers follow one pattern: parse and validate path and query
// parameters, call the service interface, and either render a success
// envelope
//
//	{"status": "success", "data": ..., "count": n}
//
// or hand the error to the shared ErrorHandler, which answers with RFC 7807
// problem details. Unknown runs answer 404, malformed run IDs and unknown
// filter values 400, and anything else 500.
package http
