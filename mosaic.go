package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DEM formats
const (
	DEMFormatDGM = "dgm" // digital terrain model
	DEMFormatDOM = "dom" // digital surface model
	DEMFormatLAS = "las" // point cloud (published, not yet supported)
)

// supportedOutputSRS lists the output coordinate systems currently supported.
var supportedOutputSRS = map[string]bool{
	"EPSG:25832": true,
}

// supportedDEMFormats lists the DEM formats currently supported.
var supportedDEMFormats = map[string]bool{
	DEMFormatDGM: true,
	DEMFormatDOM: true,
}

/*
verifyCapabilities rejects configurations which are published by the portal (or requested by users)
but not yet supported.
*/
func verifyCapabilities(progConfig ProgConfig) error {
	srs := normalizeSRS(progConfig.OutputSRS)
	if !supportedOutputSRS[srs] {
		return fmt.Errorf("%w: changing the output srs [%s] is not yet possible", ErrUnsupportedConfiguration, progConfig.OutputSRS)
	}
	if progConfig.DataChoice == DataChoiceDEM || progConfig.DataChoice == DataChoiceBoth {
		if progConfig.DEMFormat == DEMFormatLAS {
			return fmt.Errorf("%w: las files are not yet supported", ErrUnsupportedConfiguration)
		}
		if !supportedDEMFormats[progConfig.DEMFormat] {
			return fmt.Errorf("%w: dem format [%s], expected dgm or dom", ErrUnsupportedConfiguration, progConfig.DEMFormat)
		}
	}
	return nil
}

/*
normalizeSRS normalizes a srs definition like "epsg: 25832" to "EPSG:25832".
*/
func normalizeSRS(srs string) string {
	return strings.ToUpper(strings.ReplaceAll(srs, " ", ""))
}

/*
filterRasterFiles drops sidecar files (world files, metadata, ...) by extension.
*/
func filterRasterFiles(files []string, sidecarExtensions []string) []string {
	rasters := make([]string, 0, len(files))
	for _, file := range files {
		lower := strings.ToLower(file)
		sidecar := false
		for _, extension := range sidecarExtensions {
			extension = strings.ToLower(extension)
			if !strings.HasPrefix(extension, ".") {
				extension = "." + extension
			}
			if strings.HasSuffix(lower, extension) {
				sidecar = true
				break
			}
		}
		if !sidecar {
			rasters = append(rasters, file)
		}
	}
	return rasters
}

/*
mergeTiles merges the rasters into <outName>.tif (via the virtual mosaic <outName>.vrt) in dir.
The pixel size of the first raster is used for the merged raster. It returns the paths of the
intermediate files.
*/
func mergeTiles(files []string, sidecarExtensions []string, dir, outName, srs string) ([]string, error) {
	rasters := filterRasterFiles(files, sidecarExtensions)
	if len(rasters) == 0 {
		return nil, fmt.Errorf("no raster files to merge in [%s]", dir)
	}

	// the first tile defines the resolution (mixed resolutions are not detected)
	xRes, yRes, err := rasterResolution(rasters[0])
	if err != nil {
		return nil, err
	}

	vrtName := filepath.Join(dir, outName+".vrt")
	tifName := filepath.Join(dir, outName+".tif")
	intermediates := []string{vrtName, tifName}

	err = buildMosaic(rasters, vrtName, tifName, normalizeSRS(srs), xRes, yRes)
	if err != nil {
		return intermediates, err
	}

	slog.Info("tiles merged", "rasters", len(rasters), "file", tifName, "xRes", xRes, "yRes", yRes)
	return intermediates, nil
}

/*
clipRaster clips input to the area of interest into output.
*/
func clipRaster(input, output, aoiPath, srs string) error {
	// a previous result is replaced
	if FileExists(output) {
		err := os.Remove(output)
		if err != nil {
			return fmt.Errorf("error [%w] at os.Remove(), file = [%s]", err, output)
		}
	}

	err := warpToCutline(input, output, aoiPath, normalizeSRS(srs))
	if err != nil {
		return err
	}
	slog.Info("raster clipped", "input", input, "output", output, "cutline", aoiPath)
	return nil
}

/*
demOutputName returns the name of the clipped DEM (e.g. merged_dgm_clip.tif).
*/
func demOutputName(outName, demFormat string) string {
	return outName + "_" + demFormat + "_clip.tif"
}

/*
opOutputName returns the name of the clipped orthophoto (e.g. merged_op_clip.tif).
*/
func opOutputName(outName string) string {
	return outName + "_op_clip.tif"
}
