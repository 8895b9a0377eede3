package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestChainCmd_UnresolvedDependencyFails(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "orphan.sh", "#!/bin/sh\necho '{}'\n")
	manifest := writeFile(t, dir, "chain.json", `{
		"collectors": [
			{"name": "orphan", "filePath": "`+script+`", "dependencies": ["inventory"]}
		]
	}`)

	_, err := runCLI(t, "chain", manifest)
	if err == nil {
		t.Fatal("expected unresolved dependency error, got nil")
	}
	if !strings.Contains(err.Error(), "unresolved dependencies") {
		t.Fatalf("error = %v, want unresolved dependencies", err)
	}
	if !strings.Contains(err.Error(), "inventory") {
		t.Fatalf("error = %v, want missing dependency named", err)
	}
}

func TestChainCmd_SelfContainedManifestSucceeds(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.sh", "#!/bin/sh\necho '{\"stage\": 1}'\n")
	second := writeFile(t, dir, "second.sh", "#!/bin/sh\necho '{\"stage\": 2}'\n")
	manifest := writeFile(t, dir, "chain.json", `{
		"collectors": [
			{"name": "second", "filePath": "`+second+`", "dependencies": ["first"]},
			{"name": "first", "filePath": "`+first+`"}
		]
	}`)

	out, err := runCLI(t, "chain", manifest)
	if err != nil {
		t.Fatalf("chain failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"stage": 1`) || !strings.Contains(out, `"stage": 2`) {
		t.Fatalf("output missing collector results:\n%s", out)
	}
}

func TestRunCmd_ExecutesCollector(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "status.sh", "#!/bin/sh\necho '{\"ok\": true}'\n")

	out, err := runCLI(t, "run", script)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"ok": true`) {
		t.Fatalf("output missing collector payload:\n%s", out)
	}
}
