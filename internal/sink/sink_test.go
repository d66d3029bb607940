package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    []string
		want  Flags
		isErr bool
	}{
		{name: "empty", in: nil, want: 0},
		{name: "memory only", in: []string{"memory"}, want: Memory},
		{name: "mixed case and spaces", in: []string{" Log ", "MEM"}, want: Log | Memory},
		{name: "all three", in: []string{"log", "memory", "coredump"}, want: All},
		{name: "unknown", in: []string{"disk"}, isErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in)
			if tc.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "log|coredump", (Log | Coredump).String())
	assert.Equal(t, "memory|0x10", (Memory | 0x10).String())
}

func TestChunkLine(t *testing.T) {
	t.Parallel()
	c := Chunk{Offset: 0x40, Words: [4]uint32{1, 0xdeadbeef, 0, 0xffffffff}}
	assert.Equal(t, "0x40 : 00000001 deadbeef 00000000 ffffffff", c.Line())
}
