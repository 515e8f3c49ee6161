// Package evaluate runs the pseudo out-of-sample evaluation.
//
// For every out-of-sample quarter, in ascending order, and every horizon
// the Evaluator takes the Window of the forward rolling index, selects
// variables on it, fits the forecasting model for each information
// criterion on the selected and on all visible variables, and scores the
// predictions against the realised value together with an AR(4) baseline.
// Selection and baseline fits are memoised through the model cache.
//
// A cell moves pending -> selecting -> fitting -> scored; a cell with no
// visible regressor skips fitting and is scored on the baseline alone.
package evaluate
