// Package app wires the diagnostics engine together: it loads the catalog
// configuration, picks the register transport, builds the notifiers and runs
// the capture worker next to the control server. It is decoupled from any
// specific entrypoint like a CLI.
package app
