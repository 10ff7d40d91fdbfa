package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		raw      string
		expected ServerVersion
	}{
		{"9.6.24", ServerVersion{Major: 9, Minor: 6}},
		{"14.2", ServerVersion{Major: 14, Minor: 2}},
		{"16beta1", ServerVersion{Major: 16}},
		{"12.8 (Debian 12.8-1.pgdg100+1)", ServerVersion{Major: 12, Minor: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			version, err := ParseServerVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}

	_, err := ParseServerVersion("")
	assert.Error(t, err)
	_, err = ParseServerVersion("devel")
	assert.Error(t, err)
}

func TestServerVersionAtLeast(t *testing.T) {
	v := ServerVersion{Major: 9, Minor: 5}
	assert.True(t, v.AtLeast(9, 5))
	assert.True(t, v.AtLeast(9, 4))
	assert.True(t, v.AtLeast(8, 9))
	assert.False(t, v.AtLeast(9, 6))
	assert.False(t, v.AtLeast(10, 0))

	assert.True(t, ServerVersion{Major: 14, Minor: 2}.AtLeast(9, 5))
	assert.Equal(t, "9.5", v.String())
}
