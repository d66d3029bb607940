package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths (files or directories) and
// merges them, in order, over config.Default.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.ExpandPaths(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := config.Default()
	parser := hclparse.NewParser()
	evalCtx := newEvalContext()

	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		part, err := translate(&root)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration in %s: %w", file, err)
		}
		model.Merge(part)
		logger.Debug("Loaded HCL file.", "file", file, "blocks", len(part.Blocks), "notifiers", len(part.Notifiers))
	}

	logger.Debug("HCL loading complete.", "blocks", len(model.Blocks), "notifiers", len(model.Notifiers))
	return model, nil
}

// translate converts one decoded file into a partial model.
func translate(root *fileRoot) (*config.Model, error) {
	m := &config.Model{}

	if e := root.Engine; e != nil {
		m.Engine = config.Engine{
			Sinks:          e.Sinks,
			QueueDepth:     e.QueueDepth,
			MaxSelection:   e.MaxSelection,
			MaxBufferWords: e.MaxBufferWords,
			Magic:          e.Magic,
			Module:         e.Module,
		}
		if e.CoredumpTimeout != "" {
			d, err := time.ParseDuration(e.CoredumpTimeout)
			if err != nil {
				return nil, fmt.Errorf("engine.coredump_timeout: %w", err)
			}
			m.Engine.CoredumpTimeout = d
		}
	}

	for _, b := range root.Blocks {
		blk := &config.Block{Name: b.Name, Address: b.BaseAddress, Length: b.Length}
		for _, r := range b.Ranges {
			blk.Ranges = append(blk.Ranges, &config.Range{
				Name:     r.Name,
				Start:    r.Start,
				End:      r.End,
				ClientID: r.ClientID,
			})
		}
		m.Blocks = append(m.Blocks, blk)
	}

	for _, n := range root.Notifiers {
		nt := &config.Notifier{
			Kind:               n.Kind,
			URL:                n.URL,
			Namespace:          n.Namespace,
			Event:              n.Event,
			InsecureSkipVerify: n.InsecureSkipVerify,
		}
		if n.Timeout != "" {
			d, err := time.ParseDuration(n.Timeout)
			if err != nil {
				return nil, fmt.Errorf("notify %q timeout: %w", n.Kind, err)
			}
			nt.Timeout = d
		}
		m.Notifiers = append(m.Notifiers, nt)
	}
	return m, nil
}
