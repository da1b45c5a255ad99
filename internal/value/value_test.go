package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMissing(t *testing.T) {
	for _, tok := range []string{"", "-", "NA", "n/a", "Null", "NAN", "none", "  "} {
		v := Classify([]byte(tok))
		assert.Equal(t, Missing, v.Kind, "token %q", tok)
	}
}

func TestClassifyPlainNumbers(t *testing.T) {
	cases := map[string]float64{
		"0":        0,
		"42":       42,
		"-3.5":     -3.5,
		"+3.5":     3.5,
		".5":       0.5,
		"1,234":    1234,
		"1,234,567.89": 1234567.89,
		"1e10":     1e10,
		"-1.5E-3":  -1.5e-3,
	}
	for tok, want := range cases {
		v := Classify([]byte(tok))
		assert.Equal(t, Number, v.Kind, "token %q", tok)
		assert.InDelta(t, want, v.Number, 1e-9, "token %q", tok)
	}
}

func TestClassifyRejectsBadGrouping(t *testing.T) {
	v := Classify([]byte("12,34"))
	assert.Equal(t, NonNumeric, v.Kind)
}

func TestClassifyAccountingParens(t *testing.T) {
	v := Classify([]byte("($1,234.56)"))
	assert.Equal(t, Number, v.Kind)
	assert.InDelta(t, -1234.56, v.Number, 1e-9)
}

func TestClassifyAccountingParensOverrideOuterSign(t *testing.T) {
	v := Classify([]byte("($-1,234.56)"))
	assert.Equal(t, Number, v.Kind)
	assert.InDelta(t, -1234.56, v.Number, 1e-9)
}

func TestClassifyCurrencyPrefix(t *testing.T) {
	v := Classify([]byte("$-100.00"))
	assert.Equal(t, Number, v.Kind)
	assert.InDelta(t, -100.0, v.Number, 1e-9)

	v = Classify([]byte("-$100.00"))
	assert.Equal(t, Number, v.Kind)
	assert.InDelta(t, -100.0, v.Number, 1e-9)
}

func TestClassifyNonNumeric(t *testing.T) {
	for _, tok := range []string{"abc", "1.2.3", "1,23", "$", "()", "--1"} {
		v := Classify([]byte(tok))
		assert.Equal(t, NonNumeric, v.Kind, "token %q", tok)
	}
}
