package files

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Kind classifies an input file by extension
type Kind string

const (
	KindCSV      Kind = "csv"
	KindWorkbook Kind = "xlsx"
	KindSDMX     Kind = "xml"
	// KindMetadata is the metadata.csv companion of CSV observation files
	KindMetadata Kind = "metadata"
)

// MetadataFile is the metadata companion of CSV inputs in a directory
const MetadataFile = "metadata.csv"

// Input represents a discovered indicator file
type Input struct {
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	SHA256  string    `json:"sha256"`
}

// KindOf returns the input kind of a file name, false for other files
func KindOf(name string) (Kind, bool) {
	if strings.EqualFold(name, MetadataFile) {
		return KindMetadata, true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV, true
	case ".xlsx":
		return KindWorkbook, true
	case ".xml":
		return KindSDMX, true
	}
	return "", false
}

// Discover lists the indicator files of dir in name order with their
// content digests. Subdirectories and unknown extensions are skipped.
func Discover(dir string) ([]Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var inputs []Input
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, ok := KindOf(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		path := filepath.Join(dir, entry.Name())
		sum, err := digest(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, Input{
			Name:    entry.Name(),
			Path:    path,
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
			SHA256:  sum,
		})
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	return inputs, nil
}

// Fingerprint digests the names and contents of inputs; it changes when any
// file is added, removed or edited
func Fingerprint(inputs []Input) string {
	h := sha256.New()
	for _, in := range inputs {
		fmt.Fprintf(h, "%s\x00%s\n", in.Name, in.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
