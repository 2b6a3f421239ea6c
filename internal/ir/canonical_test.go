package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]string
		expected string
	}{
		{"empty object", map[string]string{}, `{}`},
		{"single key", map[string]string{"name": "NCEAS"}, `{"name":"NCEAS"}`},
		{"sorted keys", map[string]string{"zebra": "1", "alpha": "2", "beta": "3"}, `{"alpha":"2","beta":"3","zebra":"1"}`},
		{"no html escape", map[string]string{"a": "<b>&"}, `{"a":"<b>&"}`},
		{"quote escaped", map[string]string{"a": `say "hi"`}, `{"a":"say \"hi\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute vs precomposed e-acute
	decomposed := map[string]string{"name": "Rene\u0301"}
	composed := map[string]string{"name": "Ren\u00e9"}

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	out, err := MarshalCanonical(map[string]string{"a": "x\u2028y"})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"x\u2028y\"}", string(out))

	out, err = MarshalCanonical(map[string]string{"a": `x\u2028y`})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x\\u2028y"}`, string(out))
}

func TestCompareKeysRFC8785(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D... which sort before U+FF21 in UTF-16
	// but after it in UTF-8.
	assert.Equal(t, -1, compareKeysRFC8785("\U0001F600", "\uFF21"))
	assert.Equal(t, 0, compareKeysRFC8785("a", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "ab"))
}
