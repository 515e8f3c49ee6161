// Package selection implements the variable selection strategies applied
// to each training window before the forecasting regression: none, lasso
// and elastic net with cross-validated penalty, a univariate significance
// threshold, and k-best by absolute correlation.
//
// Selectors see only the window they are given. Missing regressor cells
// are filled with the column mean of that window, and rows without a
// target value are dropped.
package selection
