package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad_FullCatalog(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeFiles(t, map[string]string{
		"engine.hcl": `
engine {
  sinks            = ["log", "memory"]
  queue_depth      = 8
  coredump_timeout = "90s"
}

notify "socketio" {
  url       = "http://localhost:3000/socket.io/"
  namespace = "/dpu"
  event     = "coredump"
}
`,
		"blocks/mdp.hcl": `
block "mdp" {
  base_address = hex("0x0ae00000")
  length       = hex("0x1000")

  range "top" {
    start = 0
    end   = hex("0x2c4")
  }
  range "intr" {
    start     = hex("0x300")
    end       = hex("0x400")
    client_id = 7
  }
}

block "vbif_rt" {
  base_address = hex("AEB0000")
  length       = 4160
}
`,
	})

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)

	wantEngine := config.Default().Engine
	wantEngine.Sinks = []string{"log", "memory"}
	wantEngine.QueueDepth = 8
	wantEngine.CoredumpTimeout = 90 * time.Second
	if diff := cmp.Diff(wantEngine, model.Engine); diff != "" {
		t.Errorf("engine mismatch (-want +got):\n%s", diff)
	}

	wantBlocks := []*config.Block{
		{Name: "mdp", Address: 0x0ae00000, Length: 0x1000, Ranges: []*config.Range{
			{Name: "top", Start: 0, End: 0x2c4},
			{Name: "intr", Start: 0x300, End: 0x400, ClientID: 7},
		}},
		{Name: "vbif_rt", Address: 0xaeb0000, Length: 4160},
	}
	if diff := cmp.Diff(wantBlocks, model.Blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, model.Notifiers, 1)
	assert.Equal(t, "socketio", model.Notifiers[0].Kind)
	assert.Equal(t, "/dpu", model.Notifiers[0].Namespace)
}

func TestLoad_EnvironmentInExpressions(t *testing.T) {
	t.Setenv("DPUDBG_TEST_UPLOAD", "https://bucket.example/dump")
	dir := writeFiles(t, map[string]string{
		"notify.hcl": `
notify "upload" {
  url     = "${env.DPUDBG_TEST_UPLOAD}?id=1"
  timeout = "30s"
}
`,
	})

	model, err := NewLoader().Load(context.Background(), filepath.Join(dir, "notify.hcl"))

	require.NoError(t, err)
	require.Len(t, model.Notifiers, 1)
	assert.Equal(t, "https://bucket.example/dump?id=1", model.Notifiers[0].URL)
	assert.Equal(t, 30*time.Second, model.Notifiers[0].Timeout)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
	}{
		{"syntax", `block "x" {`},
		{"bad hex", "block \"x\" {\n  base_address = hex(\"0xZZ\")\n  length = 16\n}\n"},
		{"missing length", `block "x" { base_address = 0 }`},
		{"unknown block", `widget "x" {}`},
		{"bad duration", `engine { coredump_timeout = "soon" }`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := writeFiles(t, map[string]string{"bad.hcl": tc.content})
			_, err := NewLoader().Load(context.Background(), dir)
			assert.Error(t, err)
		})
	}

	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestHexFunc(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]uint64{
		"0x10":        16,
		"0XfF":        255,
		"ae00000":     0xae00000,
		"0x0000_1000": 0x1000,
	} {
		got, err := HexFunc.Call([]cty.Value{cty.StringVal(in)})
		require.NoError(t, err, in)
		assert.True(t, got.Equals(cty.NumberUIntVal(want)).True(), "hex(%q) = %s", in, got.GoString())
	}

	_, err := HexFunc.Call([]cty.Value{cty.StringVal("")})
	assert.Error(t, err)
}
