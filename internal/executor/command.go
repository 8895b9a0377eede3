package executor

import (
	"path/filepath"
	"strings"
)

// interpreter is the closed set of ways a collector file gets invoked.
// Adding a collector kind means extending this enum and the two switches
// below — nothing else.
type interpreter int

const (
	interpDirect interpreter = iota // treat the path itself as executable
	interpNode
	interpPython
	interpShell
)

func interpreterFor(path string) interpreter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs":
		return interpNode
	case ".py":
		return interpPython
	case ".sh", ".bash":
		return interpShell
	default:
		return interpDirect
	}
}

// commandLine builds the command and leading args for a collector file.
// The JSON-encoded input payload is appended by the caller as the single
// positional argument.
func (i interpreter) commandLine(path string) (string, []string) {
	switch i {
	case interpNode:
		return "node", []string{path}
	case interpPython:
		return "python3", []string{path}
	case interpShell:
		return "bash", []string{path}
	default:
		return path, nil
	}
}
