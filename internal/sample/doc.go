// Package sample turns the stationary panel into the evaluation sample.
//
// ToLaggedPanel adds lag columns, ToSampleViews splits the rows into the
// in-sample and out-of-sample views, and GetForwardRollingWindowIndex
// records, for every out-of-sample quarter and horizon, which rows and
// columns are published by the forecast date. Index.Window materialises
// exactly those cells, so a consumer of a Window cannot read a value that
// was unknown at the forecast date.
package sample
