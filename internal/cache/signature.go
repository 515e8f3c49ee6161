package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"
)

// SchemaVersion is bumped whenever a cached payload changes shape
const SchemaVersion = 2

// Signature identifies a cached computation by everything its result
// depends on. It carries no wall-clock state, so equal inputs give equal
// keys across runs.
type Signature struct {
	SchemaVersion int
	Namespace     string
	Lags          int
	Start         time.Time
	End           time.Time
	Target        string
	WindowID      string
	CalendarID    string
	DataID        string
	Extra         map[string]string
}

// canonical is the hashed form; encoding/json writes struct fields in
// declaration order and map keys sorted
type canonical struct {
	SchemaVersion int               `json:"schema_version"`
	Namespace     string            `json:"namespace"`
	Lags          int               `json:"lags"`
	Start         string            `json:"start"`
	End           string            `json:"end"`
	Target        string            `json:"target"`
	WindowID      string            `json:"window_id"`
	CalendarID    string            `json:"calendar_id"`
	DataID        string            `json:"data_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (s Signature) canonical() canonical {
	v := s.SchemaVersion
	if v == 0 {
		v = SchemaVersion
	}
	return canonical{
		SchemaVersion: v,
		Namespace:     s.Namespace,
		Lags:          s.Lags,
		Start:         s.Start.UTC().Format("2006-01-02"),
		End:           s.End.UTC().Format("2006-01-02"),
		Target:        s.Target,
		WindowID:      s.WindowID,
		CalendarID:    s.CalendarID,
		DataID:        s.DataID,
		Extra:         s.Extra,
	}
}

// Key returns the hex sha256 of the canonical JSON encoding
func (s Signature) Key() string {
	b, _ := json.Marshal(s.canonical())
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// StoreKey prefixes Key with the namespace
func (s Signature) StoreKey() string {
	ns := s.Namespace
	if ns == "" {
		ns = "default"
	}
	return ns + "/" + s.Key()
}

// MarshalJSON writes the canonical form
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.canonical())
}

// WindowIdentity hashes the dates of a training window
func WindowIdentity(dates []time.Time) string {
	h := sha256.New()
	for _, d := range dates {
		h.Write([]byte(d.UTC().Format("2006-01-02")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ContentDigest hashes column names and numeric rows. Every NaN hashes
// alike, and rows are length-prefixed so their boundaries are part of the
// digest.
func ContentDigest(columns []string, rows ...[]float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range columns {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	for _, row := range rows {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
		h.Write(buf[:])
		for _, v := range row {
			bits := math.Float64bits(v)
			if math.IsNaN(v) {
				bits = math.Float64bits(math.NaN())
			}
			binary.LittleEndian.PutUint64(buf[:], bits)
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
