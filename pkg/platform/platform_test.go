package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestABIString(t *testing.T) {
	tests := []struct {
		name string
		abi  ABI
		want string
	}{
		{
			name: "amd64",
			abi:  ABI{OS: "freebsd", Version: 9, Machine: "x86", WordSize: 64},
			want: "freebsd:9:x86:64",
		},
		{
			name: "arm",
			abi:  ABI{OS: "freebsd", Version: 10, Machine: "arm", WordSize: 32, Endian: "el", Variant: "eabi", Float: "softfp"},
			want: "freebsd:10:arm:32:el:eabi:softfp",
		},
		{
			name: "mips",
			abi:  ABI{OS: "freebsd", Version: 9, Machine: "mips", WordSize: 64, Endian: "eb", Variant: "n64"},
			want: "freebsd:9:mips:64:eb:n64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.abi.String())

			parsed, err := Parse(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.abi, parsed)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "freebsd:9:x86", "freebsd:nine:x86:64", "freebsd:9:x86:64:el", "freebsd:9:x86:sixtyfour"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestFromRuntime(t *testing.T) {
	abi := FromRuntime()
	assert.NotEmpty(t, abi.OS)
	assert.NotEmpty(t, abi.Machine)
	assert.False(t, abi.IsZero())
}
