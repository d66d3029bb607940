package app_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/specialistvlad/dpudbg/internal/app"
	"github.com/specialistvlad/dpudbg/internal/hcl"
	"github.com/specialistvlad/dpudbg/internal/registry"
	"github.com/specialistvlad/dpudbg/internal/testutil"
	"github.com/stretchr/testify/require"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// runApp writes files to a temporary catalog directory, builds an App over it
// in simulate mode and runs it until it returns. cfg.CatalogPaths is
// overwritten. Startup panics are reported as errors.
func runApp(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()

	cfg.CatalogPaths = []string{testutil.WriteFiles(t, files)}
	cfg.Simulate = true
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	validated, err := app.NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, validated, hcl.NewLoader(), modules...)
	}()
	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	runErr := testApp.Run(ctx)
	if os.Getenv("DPUDBG_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}
	return &HarnessResult{LogOutput: logBuffer.String(), Err: runErr, App: testApp}
}
