package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5", "5"},
		{"S", "5"},
		{"s", "5"},
		{" 5 ", "5"},
		{"５", "5"},
		{"O0o", "000"},
		{"Il|", "111"},
		{"B8", "88"},
		{"Zz2", "222"},
		{"AbC", "a8c"},
		{"ABC", "a8c"},
		{"\t\n", ""},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"S O", "Hello World", "ＡＢＣ", "lI|", "ß", "x y z", "42"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
