package panel

import (
	"strconv"
	"strings"
)

// ColumnName identifies a panel column by the indicator it derives from.
// Encoded as base[_mK][_LJ][_tC]:
//
//	ip_m2        month 2 of the quarter
//	ip_m2_L1     same slot one quarter earlier
//	ip_m2_L1_t5  with FRED-MD transformation code 5 applied
type ColumnName struct {
	Base      string `json:"base"`
	Slot      int    `json:"slot,omitempty"`
	Lag       int    `json:"lag,omitempty"`
	Transform int    `json:"transform,omitempty"`
}

func (c ColumnName) String() string {
	var b strings.Builder
	b.WriteString(c.Base)
	if c.Slot > 0 {
		b.WriteString("_m")
		b.WriteString(strconv.Itoa(c.Slot))
	}
	if c.Lag > 0 {
		b.WriteString("_L")
		b.WriteString(strconv.Itoa(c.Lag))
	}
	if c.Transform > 1 {
		b.WriteString("_t")
		b.WriteString(strconv.Itoa(c.Transform))
	}
	return b.String()
}

// WithLag returns the name of the same variable lagged by n rows
func (c ColumnName) WithLag(n int) ColumnName {
	c.Lag = n
	return c
}

// WithTransform returns the name of the same variable after transformation code
func (c ColumnName) WithTransform(code int) ColumnName {
	c.Transform = code
	return c
}

// Unlagged strips the lag
func (c ColumnName) Unlagged() ColumnName {
	c.Lag = 0
	return c
}

// ParseColumnName decodes a column name. Suffixes are read right to left in
// the order transform, lag, slot; anything else belongs to the base.
func ParseColumnName(s string) ColumnName {
	var c ColumnName
	parts := strings.Split(s, "_")
	end := len(parts)

	if end > 1 {
		if n, ok := suffixNumber(parts[end-1], "t"); ok && n > 1 {
			c.Transform = n
			end--
		}
	}
	if end > 1 {
		if n, ok := suffixNumber(parts[end-1], "L"); ok && n > 0 {
			c.Lag = n
			end--
		}
	}
	if end > 1 {
		if n, ok := suffixNumber(parts[end-1], "m"); ok && n >= 1 && n <= 3 {
			c.Slot = n
			end--
		}
	}
	c.Base = strings.Join(parts[:end], "_")
	return c
}

func suffixNumber(part, prefix string) (int, bool) {
	if !strings.HasPrefix(part, prefix) || len(part) == len(prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(part[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
