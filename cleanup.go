package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// KeepCategory names a group of files which may be kept after a run.
type KeepCategory string

// keep categories
const (
	KeepZip          KeepCategory = "zip"
	KeepUnzipped     KeepCategory = "unzipped"
	KeepIntermediate KeepCategory = "intermediate"
	KeepAll          KeepCategory = "all"
)

/*
parseKeepCategory parses a keep category from configuration.
*/
func parseKeepCategory(value string) (KeepCategory, error) {
	category := KeepCategory(strings.ToLower(strings.TrimSpace(value)))
	switch category {
	case KeepZip, KeepUnzipped, KeepIntermediate, KeepAll:
		return category, nil
	}
	return "", fmt.Errorf("%w: keep files entry [%s], expected zip, unzipped, intermediate or all",
		ErrUnsupportedConfiguration, value)
}

/*
filesToDelete returns all files which are not covered by a keep category.
No categories: everything is deleted. "all" overrides the other categories.
*/
func filesToDelete(artifacts Artifacts, intermediates []string, keepFiles []string) []string {
	keep := make(map[KeepCategory]bool, len(keepFiles))
	for _, value := range keepFiles {
		category, err := parseKeepCategory(value)
		if err != nil {
			// verified on configuration load
			continue
		}
		keep[category] = true
	}

	if keep[KeepAll] {
		return nil
	}

	var files []string
	if !keep[KeepZip] {
		files = append(files, artifacts.Archives...)
	}
	if !keep[KeepUnzipped] {
		files = append(files, artifacts.Unpacked...)
	}
	if !keep[KeepIntermediate] {
		files = append(files, intermediates...)
	}
	return files
}

/*
deleteFiles deletes files. Failures are logged as warnings and do not stop the run.
It returns the number of deleted files.
*/
func deleteFiles(files []string) int {
	deleted := 0
	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if seen[file] {
			continue
		}
		seen[file] = true

		if !FileExists(file) {
			slog.Warn("file could not be deleted, file not found", "file", file)
			continue
		}
		err := os.Remove(file)
		if err != nil {
			slog.Warn("file could not be deleted", "file", file, "error", err)
			continue
		}
		deleted++
	}
	slog.Info("residual files deleted", "deleted", deleted, "requested", len(files))
	return deleted
}
