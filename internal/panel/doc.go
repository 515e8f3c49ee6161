// Package panel builds the aligned modelling panel from raw indicator series.
//
// The builder runs four steps, each returning new values:
//
//	raw      one panel per indicator at its native frequency
//	imputed  missing values filled by a named strategy, or passed through
//	aligned  every series converted to the monthly working frequency
//	blocked  one quarterly panel with a column per month slot
//
// Column names encode the base indicator, month slot, lag and
// transformation (see ColumnName). Loaders read long-format CSV, Excel
// workbooks and SDMX-ML generic data.
package panel
