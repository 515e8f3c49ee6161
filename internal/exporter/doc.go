// Package exporter persists evaluation runs.
//
// A run is stored as a JSON bundle named after its run id under the results
// directory. The bundle carries the per-horizon records, the pooled series,
// the run parameters and fingerprints of the inputs and the calendar, so a
// results server can answer queries without recomputing anything.
//
// Records can also be exported as CSV (UTF-8 BOM, empty cells for missing
// values) or as an xlsx workbook with results, pooled, summary,
// stationarity, panel and metadata sheets.
package exporter
