// Package stationarity tests panel columns for a unit root and transforms
// the ones that need it.
//
// The test is an augmented Dickey-Fuller regression with a constant, lag
// order picked by AIC and MacKinnon finite-sample critical values.
// Transformations follow the FRED-MD codes 1..7. The test window ends at the
// nowcast start by default (WindowEndNowcastStart), so out-of-sample data
// never decides how a column is transformed.
package stationarity
