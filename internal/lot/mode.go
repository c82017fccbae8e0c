package lot

import (
	"errors"
	"fmt"
	"strings"
)

// GroupingMode selects how images map to lots for one run.
type GroupingMode string

const (
	// SingleLot treats every image as the same physical lot.
	SingleLot GroupingMode = "single_lot"
	// PerItem lists every distinct item visible in each image.
	PerItem GroupingMode = "per_item"
	// PerPhoto produces exactly one lot per image.
	PerPhoto GroupingMode = "per_photo"
)

// ErrUnknownMode is returned by ParseMode for unrecognized selectors.
var ErrUnknownMode = errors.New("unknown grouping mode")

// Modes returns every supported grouping mode.
func Modes() []GroupingMode {
	return []GroupingMode{SingleLot, PerItem, PerPhoto}
}

// ParseMode parses a grouping mode selector. Matching is case-insensitive
// and accepts a few short aliases.
func ParseMode(s string) (GroupingMode, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "single_lot", "single", "singlelot":
		return SingleLot, nil
	case "per_item", "item", "items", "everything":
		return PerItem, nil
	case "per_photo", "photo", "photos":
		return PerPhoto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ParseModes parses a comma separated list of modes, e.g. "per_item,per_photo".
func ParseModes(s string) ([]GroupingMode, error) {
	var modes []GroupingMode
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseMode(part)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return modes, nil
}

func (m GroupingMode) String() string {
	return string(m)
}
