package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/dpudbg/internal/app"
	"github.com/specialistvlad/dpudbg/internal/sink"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// splitList parses a comma separated flag value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("dpudbg", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
dpudbg - Register dump and coredump capture for display processing units.

Usage:
  dpudbg [options] [CATALOG_PATH...]

Arguments:
  CATALOG_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	catalogFlag := flagSet.String("catalog", "", "Comma separated catalog files or directories.")
	listenFlag := flagSet.String("listen", "127.0.0.1:7070", "Address of the control server. Empty disables it.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	sinksFlag := flagSet.String("sinks", "", "Comma separated sinks overriding the catalog: 'log', 'memory', 'coredump'.")
	queueFlag := flagSet.Int("queue-depth", 0, "Capture queue depth overriding the catalog. 0 keeps it.")
	simulateFlag := flagSet.Bool("simulate", false, "Read from simulated registers instead of the memory device.")
	devMemFlag := flagSet.String("devmem", "/dev/mem", "Physical memory device used for register reads.")
	powerFlag := flagSet.String("power", "", "Sysfs device directory whose runtime power gates register reads.")
	stateFlag := flagSet.String("state", "", "File captured as driver state alongside each coredump.")
	dumpFlag := flagSet.String("dump", "", "Comma separated targets to capture at startup, or 'all'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := splitList(*catalogFlag)
	paths = append(paths, flagSet.Args()...)
	if len(paths) == 0 {
		slog.Debug("No catalog path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	sinks := splitList(*sinksFlag)
	if _, err := sink.Parse(sinks); err != nil {
		return nil, false, &ExitError{Code: 2, Message: "invalid sinks: " + err.Error()}
	}

	if *queueFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid queue-depth: must not be negative"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		CatalogPaths: paths,
		Listen:       *listenFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		Sinks:        sinks,
		QueueDepth:   *queueFlag,
		Dump:         splitList(*dumpFlag),
		Simulate:     *simulateFlag,
		DevMemPath:   *devMemFlag,
		PowerDevice:  *powerFlag,
		StatePath:    *stateFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
