package config

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"nowcast/internal/calendar"
	"nowcast/internal/errors"
	"nowcast/internal/panel"
	"nowcast/internal/sample"
	"nowcast/internal/selection"
	"nowcast/internal/stationarity"
	"nowcast/pkg/contracts/domain"
)

// fieldError turns the first validator failure into a configuration error
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewConfigurationError(err.Error(), nil)
	}
	fe := verrs[0]
	return errors.NewConfigurationError("invalid configuration value",
		map[string]interface{}{
			"field": strings.TrimPrefix(fe.Namespace(), "Config."),
			"rule":  fe.Tag(),
			"param": fe.Param(),
			"value": fe.Value(),
		})
}

// checkDomain applies the rules that struct tags cannot express. Every
// failure is a configuration error raised before any computation.
func (c *Config) checkDomain() error {
	r := c.Run
	if r.Start.IsZero() || r.End.IsZero() || r.NowcastStart.IsZero() {
		return errors.NewConfigurationError("start_date, nowcast_start and end_date are required", nil)
	}
	if !r.Start.Before(r.NowcastStart.Time) || !r.NowcastStart.Before(r.End.Time) {
		return errors.NewConfigurationError("sample dates must satisfy start_date < nowcast_start < end_date",
			map[string]interface{}{
				"start_date":    r.Start.String(),
				"nowcast_start": r.NowcastStart.String(),
				"end_date":      r.End.String(),
			})
	}
	if r.Lags < stationarity.MinLags {
		return errors.NewInsufficientLagError(r.Lags, stationarity.MinLags)
	}
	m, err := calendar.Lookup(r.Mapping)
	if err != nil {
		return err
	}
	hs, err := domain.ParseHorizons(r.Horizons)
	if err != nil {
		return errors.NewConfigurationError(err.Error(), map[string]interface{}{"horizons": r.Horizons})
	}
	for _, h := range hs {
		if h.Steps >= m.Blocks {
			return errors.NewConfigurationError("horizon beyond the release blocks of the mapping",
				map[string]interface{}{"horizon": h.Label, "mapping": m.Name, "blocks": m.Blocks})
		}
	}
	if _, err := sample.ParseLagKind(r.LagKind); err != nil {
		return err
	}
	if _, err := stationarity.WindowEndPolicy(r.Stationarity.WindowEnd).End(r.NowcastStart.Time, r.End.Time); err != nil {
		return err
	}
	if r.Impute {
		if _, err := panel.LookupImputer(r.ImputeMethod); err != nil {
			return err
		}
	}
	for _, v := range r.DropVars {
		if v == r.YVar || v == panel.ParseColumnName(r.YVar).Base {
			return errors.NewConfigurationError("the target variable cannot be dropped",
				map[string]interface{}{"y_var": r.YVar})
		}
	}
	if _, err := selection.New(c.Selection.Options()); err != nil {
		return err
	}
	return nil
}

// ParsedHorizons returns the configured horizons; call after Validate
func (r RunConfig) ParsedHorizons() []domain.Horizon {
	hs, _ := domain.ParseHorizons(r.Horizons)
	return hs
}

// ParsedCriteria returns the configured information criteria
func (s SelectionConfig) ParsedCriteria() []domain.Criterion {
	out := make([]domain.Criterion, 0, len(s.Criteria))
	for _, c := range s.Criteria {
		out = append(out, domain.Criterion(c))
	}
	return out
}

// Options converts the section into selector options
func (s SelectionConfig) Options() selection.Options {
	opts := selection.DefaultOptions()
	opts.Policy = selection.Policy(s.Policy)
	opts.Folds = s.Folds
	opts.Alphas = append([]float64(nil), s.Alphas...)
	opts.L1Ratio = s.L1Ratio
	opts.Rule = s.Rule
	opts.K = s.K
	opts.Threshold = s.Threshold
	if s.MaxIter > 0 {
		opts.MaxIter = s.MaxIter
	}
	return opts
}

// SignatureParams are the selection settings that change a selector's
// output; they enter the selection cache signature
func (s SelectionConfig) SignatureParams() map[string]string {
	alphas := make([]string, len(s.Alphas))
	for i, a := range s.Alphas {
		alphas[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}
	return map[string]string{
		"folds":     strconv.Itoa(s.Folds),
		"alphas":    strings.Join(alphas, ","),
		"l1_ratio":  strconv.FormatFloat(s.L1Ratio, 'g', -1, 64),
		"rule":      s.Rule,
		"k":         strconv.Itoa(s.K),
		"threshold": strconv.FormatFloat(s.Threshold, 'g', -1, 64),
		"max_iter":  strconv.Itoa(s.MaxIter),
	}
}
