// Package results stores forecast records and derives the pooled series.
//
// Table holds one record per (series key, quarter). Aggregate adds the
// horizon combinations: a simple average and an inverse-MSE weighting whose
// weights for a quarter come only from strictly earlier quarters. Summary
// reports RMSE against the AR(4) baseline.
package results
