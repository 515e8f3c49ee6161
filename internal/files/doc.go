// Package files discovers indicator input files and writes outputs
// atomically.
//
// Discover lists the CSV, workbook and SDMX files of an input directory
// with their SHA-256 digests; Fingerprint combines them so a run bundle
// records exactly which inputs produced it. WriteAtomic is the single
// write path for run bundles and file cache entries.
package files
