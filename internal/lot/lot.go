package lot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Lot is one distinct physical item or item group in an appraisal inventory.
// Candidate lots come straight from an analyzer; final lots have been through
// deduplication and assembly.
type Lot struct {
	LotID           string   `json:"lot_id" yaml:"lot_id"`
	Title           string   `json:"title" yaml:"title" validate:"required"`
	Description     string   `json:"description" yaml:"description" validate:"required"`
	Condition       string   `json:"condition,omitempty" yaml:"condition,omitempty"`
	EstimatedValue  *Amount  `json:"estimated_value,omitempty" yaml:"estimated_value,omitempty"`
	// EstimatedValueText holds a value quote that is not a single amount,
	// e.g. "on request" or "$100 - $200".
	EstimatedValueText string `json:"estimated_value_text,omitempty" yaml:"estimated_value_text,omitempty"`
	Tags            []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	SerialNoOrLabel *string  `json:"serial_no_or_label,omitempty" yaml:"serial_no_or_label,omitempty"`
	SerialNumber    *string  `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Details         string   `json:"details,omitempty" yaml:"details,omitempty"`
	ImageURL        string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	ImageIndexes    []int    `json:"image_indexes" yaml:"image_indexes"`
	// ExtraImageIndexes lists additional imagery that is not part of the
	// lot's primary frame set (close-ups, labels).
	ExtraImageIndexes []int    `json:"extra_image_indexes,omitempty" yaml:"extra_image_indexes,omitempty"`
	ImageURLs         []string `json:"image_urls,omitempty" yaml:"image_urls,omitempty"`
	ExtraImageURLs    []string `json:"extra_image_urls,omitempty" yaml:"extra_image_urls,omitempty"`
}

var validate = validator.New()

// ErrInvalidAmount is returned for an estimated value that is not one amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Validate checks the fields every lot must carry.
func (l *Lot) Validate() error {
	return validate.Struct(l)
}

// SerialKey returns the normalized serial number or label of the lot, falling
// back to SerialNumber when SerialNoOrLabel is absent or blank.
func (l *Lot) SerialKey() string {
	if l.SerialNoOrLabel != nil {
		if key := Normalize(*l.SerialNoOrLabel); key != "" {
			return key
		}
	}
	if l.SerialNumber != nil {
		return Normalize(*l.SerialNumber)
	}
	return ""
}

// Clone returns a deep copy of the lot.
func (l Lot) Clone() Lot {
	c := l
	if l.EstimatedValue != nil {
		v := *l.EstimatedValue
		c.EstimatedValue = &v
	}
	if l.SerialNoOrLabel != nil {
		s := *l.SerialNoOrLabel
		c.SerialNoOrLabel = &s
	}
	if l.SerialNumber != nil {
		s := *l.SerialNumber
		c.SerialNumber = &s
	}
	c.Tags = cloneSlice(l.Tags)
	c.ImageIndexes = cloneSlice(l.ImageIndexes)
	c.ExtraImageIndexes = cloneSlice(l.ExtraImageIndexes)
	c.ImageURLs = cloneSlice(l.ImageURLs)
	c.ExtraImageURLs = cloneSlice(l.ExtraImageURLs)
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Normalize prepares a string for identity comparison: lower-cased, every run
// of non-alphanumeric characters collapsed to a single space, trimmed.
func Normalize(s string) string {
	var b strings.Builder
	gap := false
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte(' ')
		}
		gap = false
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeIndexes drops indexes outside [0, n) and repeated indexes, keeping
// the first occurrence order.
func SanitizeIndexes(indexes []int, n int) []int {
	if len(indexes) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(indexes))
	out := make([]int, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

// Amount is an estimated value as reported by the model. Models quote values
// both as JSON numbers and as strings like "1,200", "$45" or "1.200,50 €".
type Amount float64

// Float returns the amount as a float64.
func (a Amount) Float() float64 {
	return float64(a)
}

// UnmarshalJSON accepts a JSON number or a string holding a single amount.
// Anything else, including ranges and free text, is an error.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok := ParseAmount(s)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		*a = Amount(v)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
	}
	*a = Amount(v)
	return nil
}

// ParseAmount parses one amount written by a person. Currency symbols,
// currency codes and surrounding words are ignored. Both "1,200.50" and
// "1.200,50" are understood. Ranges, several numbers and text without a
// number are rejected.
func ParseAmount(s string) (float64, bool) {
	core := strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-'
	})
	negative := strings.HasPrefix(core, "-")
	core = strings.TrimPrefix(core, "-")
	if core == "" {
		return 0, false
	}
	var digits strings.Builder
	for _, r := range core {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			digits.WriteRune(r)
		case r == ' ', r == '\'', r == '\u00a0', r == '\u202f':
			// thousands separators
		default:
			return 0, false
		}
	}
	normalized, ok := normalizeSeparators(digits.String())
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// normalizeSeparators rewrites digits with '.' and ',' separators into the
// form strconv expects. The last separator is the decimal one when both kinds
// appear; a single kind is a thousands separator only when it repeats or is
// followed by exactly three digits.
func normalizeSeparators(s string) (string, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	var thousands, decimal string
	switch {
	case lastDot == -1 && lastComma == -1:
		return s, true
	case lastDot != -1 && lastComma != -1:
		if lastDot > lastComma {
			thousands, decimal = ",", "."
		} else {
			thousands, decimal = ".", ","
		}
	default:
		sep := "."
		if lastComma != -1 {
			sep = ","
		}
		parts := strings.Split(s, sep)
		if len(parts) == 2 && (len(parts[1]) != 3 || sep == ".") {
			thousands, decimal = "", sep
		} else {
			thousands, decimal = sep, ""
		}
	}

	intPart, fracPart := s, ""
	if decimal != "" {
		i := strings.LastIndex(s, decimal)
		intPart, fracPart = s[:i], s[i+1:]
		if fracPart == "" || strings.ContainsAny(fracPart, ".,") {
			return "", false
		}
	}
	if thousands != "" {
		groups := strings.Split(intPart, thousands)
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return "", false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		intPart = strings.Join(groups, "")
	}
	if intPart == "" || strings.ContainsAny(intPart, ".,") {
		return "", false
	}
	if fracPart != "" {
		return intPart + "." + fracPart, true
	}
	return intPart, true
}

// UnmarshalJSON decodes a lot leniently: an estimated_value that is not a
// single amount leaves EstimatedValue nil and is kept verbatim in
// EstimatedValueText.
func (l *Lot) UnmarshalJSON(data []byte) error {
	type plain Lot
	aux := struct {
		*plain
		EstimatedValue json.RawMessage `json:"estimated_value"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	l.EstimatedValue = nil
	raw := bytes.TrimSpace(aux.EstimatedValue)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var a Amount
	if err := json.Unmarshal(raw, &a); err == nil {
		l.EstimatedValue = &a
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		l.EstimatedValueText = strings.TrimSpace(text)
	} else {
		l.EstimatedValueText = string(raw)
	}
	return nil
}
