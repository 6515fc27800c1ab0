package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
)

/*
runDownload identifies, downloads, merges and clips DEM and/or orthophoto tiles for the
area of interest. Residual files are deleted according to KeepFiles.
*/
func runDownload(ctx context.Context, client *http.Client, progConfig ProgConfig) (PipelineResult, error) {
	var result PipelineResult

	// current development state
	err := verifyCapabilities(progConfig)
	if err != nil {
		return result, err
	}

	// get the grid vintage (and its overview url)
	vintage, err := selectVintage(progConfig.Year, progConfig.Portal)
	if err != nil {
		return result, err
	}
	slog.Info("grid vintage selected", "year", progConfig.Year, "vintage", vintage.Label, "overview", vintage.OverviewURL)

	// intersection of area of interest with tile grid
	tiles, err := findTiles(ctx, client, progConfig.DataDirectory, vintage, progConfig.AOI)
	if err != nil {
		return result, err
	}

	// DEM case
	if progConfig.DataChoice == DataChoiceDEM || progConfig.DataChoice == DataChoiceBoth {
		result.DEMOutput, err = processDEM(ctx, client, progConfig, vintage, tiles)
		if err != nil {
			return result, err
		}
	}

	// OP case
	if progConfig.DataChoice == DataChoiceOP || progConfig.DataChoice == DataChoiceBoth {
		result.OPOutput, err = processOP(ctx, client, progConfig, tiles)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

/*
processDEM downloads, merges and clips the DEM tiles.
*/
func processDEM(ctx context.Context, client *http.Client, progConfig ProgConfig, vintage Vintage, tiles []string) (string, error) {
	artifacts, err := downloadDEM(ctx, client, progConfig.Portal.DEMBaseURL, progConfig.DEMDirectory, tiles, progConfig.DEMFormat, vintage)
	if err != nil {
		return "", err
	}

	output := filepath.Join(progConfig.DEMDirectory, demOutputName(progConfig.OutputName, progConfig.DEMFormat))
	err = finishRaster(progConfig, artifacts, progConfig.DEMDirectory, output)
	if err != nil {
		return "", fmt.Errorf("dem: %w", err)
	}
	return output, nil
}

/*
processOP resolves the orthophoto ids, downloads, merges and clips the orthophotos.
*/
func processOP(ctx context.Context, client *http.Client, progConfig ProgConfig, tiles []string) (string, error) {
	table, err := readLookupTable(progConfig.LookupTable)
	if err != nil {
		return "", err
	}

	ids, err := resolveTileIDs(tiles, progConfig.Year, table)
	if err != nil {
		return "", err
	}
	slog.Info("orthophoto ids resolved", "year", progConfig.Year, "tiles", len(tiles), "ids", len(ids))

	artifacts, err := downloadOP(ctx, client, progConfig.Portal.OPDownloadURL, progConfig.OPDirectory, ids)
	if err != nil {
		return "", err
	}

	output := filepath.Join(progConfig.OPDirectory, opOutputName(progConfig.OutputName))
	err = finishRaster(progConfig, artifacts, progConfig.OPDirectory, output)
	if err != nil {
		return "", fmt.Errorf("op: %w", err)
	}
	return output, nil
}

/*
finishRaster merges the unpacked tiles, clips the mosaic to the area of interest and removes
residual files.
*/
func finishRaster(progConfig ProgConfig, artifacts Artifacts, dir, output string) error {
	intermediates, err := mergeTiles(artifacts.Unpacked, progConfig.SidecarExtensions, dir, progConfig.OutputName, progConfig.OutputSRS)
	if err != nil {
		return err
	}

	err = clipRaster(filepath.Join(dir, progConfig.OutputName+".tif"), output, progConfig.AOI, progConfig.OutputSRS)
	if err != nil {
		return err
	}

	deleteFiles(filesToDelete(artifacts, intermediates, progConfig.KeepFiles))
	return nil
}
