package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		patternType PatternType
		wantType    PatternType
		wantErr     bool
	}{
		{"glob", "*.googleapis.com", Glob, Glob, false},
		{"regex", "^azure\\.", Regex, Regex, false},
		{"invalid regex", "[unclosed", Regex, Regex, true},
		{"invalid glob", "[unclosed", Glob, Glob, true},
		{"auto detects glob", "*.com", Auto, Glob, false},
		{"auto detects literal as glob", "example.com", Auto, Glob, false},
		{"auto detects anchored regex", "^example", Auto, Regex, false},
		{"auto detects trailing anchor", "\\.io$", Auto, Regex, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.patternType, tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, m.Type())
			assert.Equal(t, tt.pattern, m.Pattern())
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "example.co", false},
		{"*.googleapis.com", "storage.googleapis.com", true},
		{"*.googleapis.com", "googleapis.com", false},
		{"azure.com?", "azure.com1", true},
		{"^azure\\.com(:.*)?$", "azure.com", true},
		{"^azure\\.com(:.*)?$", "azure.community", false},
		{"\\.io$", "stripe.io", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			m, err := New(Auto, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.input))
		})
	}
}

func TestCaseInsensitive(t *testing.T) {
	glob := MustNew(Glob, "*.Example.COM", Options{CaseInsensitive: true})
	assert.True(t, glob.Match("api.example.com"))
	assert.Equal(t, "*.Example.COM", glob.Pattern())

	re := MustNew(Regex, "^EXAMPLE", Options{CaseInsensitive: true})
	assert.True(t, re.Match("example.com"))
}

func TestMustNewPanics(t *testing.T) {
	assert.Panics(t, func() { MustNew(Regex, "(") })
}

func TestPatternTypeString(t *testing.T) {
	assert.Equal(t, "glob", Glob.String())
	assert.Equal(t, "regex", Regex.String())
	assert.Equal(t, "auto", Auto.String())
}
