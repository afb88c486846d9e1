//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Sync builds the CLI and runs a full extraction into data/clickup.db,
// writing the Singer stream to data/singer.jsonl.
func Sync() error {
	mg.Deps(Build, Init)
	bin := filepath.Join(binDir, binName)
	return sh.RunV("sh", "-c", bin+" sync --sqlite data/clickup.db > data/singer.jsonl")
}

// Discover prints the stream catalog.
func Discover() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "discover")
}

// Tree prints the stream tree.
func Tree() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "streams")
}
