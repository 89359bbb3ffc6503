package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/DaniruKun/steady-tracker/imgproc"
)

type limitsFile struct {
	Limits []imgproc.ColorRange `json:"limits"`
}

// LoadColorRanges reads HSV limits in the form
//
//	{"limits": [{"H": {"min": 30, "max": 40}, "S": {...}, "V": {...}}]}
//
// A missing file or one without limits yields the default ranges.
func LoadColorRanges(path string) ([]imgproc.ColorRange, error) {
	if path == "" {
		return imgproc.DefaultColorRanges(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return imgproc.DefaultColorRanges(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read limits %s: %w", path, err)
	}

	var file limitsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse limits %s: %w", path, err)
	}
	if len(file.Limits) == 0 {
		return imgproc.DefaultColorRanges(), nil
	}

	for i, r := range file.Limits {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("limit %d: %w", i, err)
		}
	}
	return file.Limits, nil
}
