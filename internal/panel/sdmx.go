package panel

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"nowcast/pkg/contracts/domain"
)

// LoadSDMX reads an SDMX-ML generic data file
func LoadSDMX(path string) ([]domain.IndicatorSeries, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	series, err := ReadSDMX(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// ReadSDMX decodes generic SDMX-ML series. The series key must carry
// INDICATOR and FREQ; RELEASE_LAG, TRANSFORM_CODE, CATEGORY, SUBCATEGORY and
// BLOCK are read from the series attributes when present.
func ReadSDMX(raw []byte) ([]domain.IndicatorSeries, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	elements := doc.FindElements("//Series")
	if len(elements) == 0 {
		return nil, fmt.Errorf("no series found in SDMX document")
	}

	var metas []domain.IndicatorMeta
	obs := make(map[string][]domain.Observation, len(elements))
	for _, el := range elements {
		key := sdmxValues(el, "./SeriesKey/Value")
		attrs := sdmxValues(el, "./Attributes/Value")

		name := key["INDICATOR"]
		if name == "" {
			return nil, fmt.Errorf("series without INDICATOR dimension")
		}
		freq, err := domain.ParseFrequency(key["FREQ"])
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", name, err)
		}
		meta := domain.IndicatorMeta{
			Name:        name,
			Category:    attrs["CATEGORY"],
			Subcategory: attrs["SUBCATEGORY"],
			Frequency:   freq,
			Block:       attrs["BLOCK"],
		}
		if v, ok := attrs["RELEASE_LAG"]; ok {
			if meta.ReleaseLagDays, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("series %s: invalid RELEASE_LAG %q", name, v)
			}
		}
		if v, ok := attrs["TRANSFORM_CODE"]; ok {
			if meta.TransformCode, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("series %s: invalid TRANSFORM_CODE %q", name, v)
			}
		}
		if err := metaValidator.Struct(meta); err != nil {
			return nil, fmt.Errorf("series %s: %w", name, err)
		}
		if _, dup := obs[name]; !dup {
			metas = append(metas, meta)
		}

		for _, o := range el.FindElements("./Obs") {
			dim := o.FindElement("./ObsDimension")
			val := o.FindElement("./ObsValue")
			if dim == nil {
				continue
			}
			d, err := ParseDate(dim.SelectAttrValue("value", ""))
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", name, err)
			}
			v, err := ParseValue("")
			if val != nil {
				v, err = ParseValue(val.SelectAttrValue("value", ""))
			}
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", name, err)
			}
			obs[name] = append(obs[name], domain.Observation{Date: d, Value: v})
		}
	}
	return assemble(metas, obs)
}

func sdmxValues(el *etree.Element, path string) map[string]string {
	out := make(map[string]string)
	for _, v := range el.FindElements(path) {
		id := strings.ToUpper(v.SelectAttrValue("id", ""))
		if id != "" {
			out[id] = strings.TrimSpace(v.SelectAttrValue("value", ""))
		}
	}
	return out
}
