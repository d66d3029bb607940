// Package hcl loads the diagnostics configuration from HCL files into the
// format-agnostic config.Model.
//
// Every expression is evaluated with a small context: the function hex()
// turns "0x..." strings into numbers (HCL has no hex literals) and the
// object env exposes the process environment.
package hcl
