package main

import (
	"errors"
	"os"
)

// --------------------------------------------------------------------------------
// Errors.
// --------------------------------------------------------------------------------

// error kinds (all fatal for a run)
var (
	ErrUnsupportedYear          = errors.New("unsupported year")
	ErrNoGridCoverage           = errors.New("no grid coverage")
	ErrMissingLookupEntry       = errors.New("missing aerial coverage")
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
)

// --------------------------------------------------------------------------------
// Types.
// --------------------------------------------------------------------------------

// Artifacts represents the files produced by downloading and unpacking tiles.
type Artifacts struct {
	Archives []string // downloaded (or cached) zip archives
	Unpacked []string // files extracted from the archives
}

// PipelineResult represents the final products of a download run.
type PipelineResult struct {
	DEMOutput string // clipped DEM raster (empty if not requested)
	OPOutput  string // clipped OP raster (empty if not requested)
}

/*
FileExists checks if a file already exists.
It returns true if the file exists, and false otherwise.
*/
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	// check if it's actually a file and not a directory
	return !info.IsDir()
}
