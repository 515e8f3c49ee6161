// Package model fits the regressions used by the rolling evaluator: ordinary
// least squares on gonum matrices, the autoregressive baseline, and the
// criterion-driven forecasting regression.
package model
