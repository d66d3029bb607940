// Package config defines the format-agnostic description of a diagnostics
// setup: engine tuning, the register blocks to register at startup and the
// coredump notifiers to attach. Concrete loaders (HCL) live elsewhere and
// produce a Model.
package config
