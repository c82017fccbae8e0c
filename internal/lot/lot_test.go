package lot

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"SN-123", "sn 123"},
		{"sn 123", "sn 123"},
		{"  Oak  Table!! ", "oak table"},
		{"---", ""},
		{"Chaise Élégante", "chaise élégante"},
		{"A/B_C", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSerialKey(t *testing.T) {
	l := Lot{SerialNoOrLabel: strPtr("SN-123")}
	assert.Equal(t, "sn 123", l.SerialKey())

	// blank primary falls back to serial_number
	l = Lot{SerialNoOrLabel: strPtr(" - "), SerialNumber: strPtr("XY 9")}
	assert.Equal(t, "xy 9", l.SerialKey())

	l = Lot{}
	assert.Equal(t, "", l.SerialKey())
}

func TestSanitizeIndexes(t *testing.T) {
	assert.Equal(t, []int{2, 0}, SanitizeIndexes([]int{2, -1, 0, 2, 5}, 3))
	assert.Nil(t, SanitizeIndexes(nil, 3))
	assert.Empty(t, SanitizeIndexes([]int{4}, 3))
}

func TestClone_IsDeep(t *testing.T) {
	v := Amount(10)
	orig := Lot{
		Title:           "Lamp",
		EstimatedValue:  &v,
		SerialNoOrLabel: strPtr("A1"),
		Tags:            []string{"brass"},
		ImageIndexes:    []int{1},
	}
	c := orig.Clone()
	c.Tags[0] = "steel"
	c.ImageIndexes[0] = 9
	*c.SerialNoOrLabel = "B2"
	*c.EstimatedValue = 99

	assert.Equal(t, "brass", orig.Tags[0])
	assert.Equal(t, 1, orig.ImageIndexes[0])
	assert.Equal(t, "A1", *orig.SerialNoOrLabel)
	assert.Equal(t, Amount(10), *orig.EstimatedValue)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Lot{Title: "Desk", Description: "Oak desk"}).Validate())
	assert.Error(t, (&Lot{Title: "Desk"}).Validate())
	assert.Error(t, (&Lot{Description: "Oak desk"}).Validate())
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var v struct {
		A *Amount `json:"a"`
	}
	valid := map[string]float64{
		`{"a": 12.5}`:    12.5,
		`{"a": "1,200"}`: 1200,
		`{"a": "$45"}`:   45,
	}
	for in, want := range valid {
		v.A = nil
		require.NoError(t, json.Unmarshal([]byte(in), &v), in)
		require.NotNil(t, v.A, in)
		assert.Equal(t, want, v.A.Float(), in)
	}

	for _, in := range []string{
		`{"a": "on request"}`,
		`{"a": "$100 - $200"}`,
		`{"a": [100, 200]}`,
		`{"a": {"min": 100, "max": 200}}`,
		`{"a": true}`,
	} {
		v.A = nil
		err := json.Unmarshal([]byte(in), &v)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}

	v.A = nil
	require.NoError(t, json.Unmarshal([]byte(`{"a": null}`), &v))
	assert.Nil(t, v.A)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"250", 250, true},
		{"$1,200.50", 1200.5, true},
		{"1.200,50 €", 1200.5, true},
		{"1 200 EUR", 1200, true},
		{"12,5", 12.5, true},
		{"1.200.000", 1200000, true},
		{"USD 45.00", 45, true},
		{"-30", -30, true},
		{"about 300", 300, true},
		{"", 0, false},
		{"unknown", 0, false},
		{"on request", 0, false},
		{"$100 - $200", 0, false},
		{"100-200", 0, false},
		{"100 or 200", 0, false},
		{"1.2.3", 0, false},
		{"1,2345,6", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}

func TestLot_UnmarshalJSON_EstimatedValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		want     *float64
		wantText string
	}{
		{name: "number", value: `99.5`, want: floatPtr(99.5)},
		{name: "amount string", value: `"1.200,50 €"`, want: floatPtr(1200.5)},
		{name: "free text", value: `"on request"`, wantText: "on request"},
		{name: "range", value: `"$100 - $200"`, wantText: "$100 - $200"},
		{name: "array", value: `[100,200]`, wantText: "[100,200]"},
		{name: "object", value: `{"min":100,"max":200}`, wantText: `{"min":100,"max":200}`},
		{name: "null", value: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Lot
			data := `{"title": "Lathe", "description": "Metal lathe", "estimated_value": ` + tt.value + `, "image_indexes": [1]}`
			require.NoError(t, json.Unmarshal([]byte(data), &l))

			assert.Equal(t, "Lathe", l.Title)
			assert.Equal(t, []int{1}, l.ImageIndexes)
			assert.Equal(t, tt.wantText, l.EstimatedValueText)
			if tt.want == nil {
				assert.Nil(t, l.EstimatedValue)
				return
			}
			require.NotNil(t, l.EstimatedValue)
			assert.InDelta(t, *tt.want, l.EstimatedValue.Float(), 1e-9)
		})
	}
}

func TestLot_JSONKeepsUnparsedValueText(t *testing.T) {
	in := Lot{Title: "Painting", Description: "Oil on canvas", EstimatedValueText: "on request"}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Lot
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Nil(t, out.EstimatedValue)
	assert.Equal(t, "on request", out.EstimatedValueText)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]GroupingMode{
		"single_lot": SingleLot,
		"Single-Lot": SingleLot,
		"per_item":   PerItem,
		"everything": PerItem,
		"PER_PHOTO":  PerPhoto,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("per_room")
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestParseModes(t *testing.T) {
	modes, err := ParseModes("per_item, per_photo")
	require.NoError(t, err)
	assert.Equal(t, []GroupingMode{PerItem, PerPhoto}, modes)

	_, err = ParseModes(" , ")
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = ParseModes("per_item,bogus")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
