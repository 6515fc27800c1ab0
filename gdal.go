package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/airbusgeo/godal"
)

// vectorFeature represents a polygon feature read from a vector file.
type vectorFeature struct {
	Name     string          // value of the requested attribute (empty if not requested)
	Geometry *godal.Geometry // owned copy of the feature geometry (Polygon or MultiPolygon)
}

/*
readVectorFeatures reads all polygon features of the first layer of a GDAL/OGR vector file
(e.g. ESRI Shapefile). If attribute is set, its value is returned as feature name; a missing
attribute is an error. Features without geometry are skipped, non-polygon features are an error.
The caller must close the returned geometries (see closeFeatures).
*/
func readVectorFeatures(filename, attribute string) ([]vectorFeature, error) {
	if !FileExists(filename) {
		return nil, fmt.Errorf("file [%s] does not exist", filename)
	}

	// open the vector file in ReadOnly mode
	dataset, err := godal.Open(filename, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("error [%w] at godal.Open(), file = [%s]", err, filename)
	}
	defer dataset.Close()

	layers := dataset.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("no vector layer found in file [%s]", filename)
	}
	layer := layers[0]
	layer.ResetReading()

	var features []vectorFeature
	nullGeometries := 0
	for {
		feature := layer.NextFeature()
		if feature == nil {
			break
		}

		vf, ok, err := copyFeature(feature, attribute)
		feature.Close()
		if err != nil {
			closeFeatures(features)
			return nil, fmt.Errorf("file [%s]: %w", filename, err)
		}
		if !ok {
			nullGeometries++
			continue
		}
		features = append(features, vf)
	}

	if nullGeometries > 0 {
		slog.Warn("features without geometry skipped", "file", filename, "count", nullGeometries)
	}
	return features, nil
}

/*
copyFeature copies name and geometry of a feature. The geometry of a feature belongs to the
feature, so an owned copy is created (via WKB). It returns false for features without geometry.
*/
func copyFeature(feature *godal.Feature, attribute string) (vectorFeature, bool, error) {
	name := ""
	if attribute != "" {
		field, ok := feature.Fields()[attribute]
		if !ok {
			return vectorFeature{}, false, fmt.Errorf("attribute [%s] not found", attribute)
		}
		name = field.String()
	}

	geometry := feature.Geometry()
	if geometry.Empty() {
		return vectorFeature{}, false, nil
	}
	if !isPolygonal(geometry.Type()) {
		return vectorFeature{}, false, fmt.Errorf("feature [%s] has non-polygon geometry [%s]", name, geometry.Name())
	}

	data, err := geometry.WKB()
	if err != nil {
		return vectorFeature{}, false, fmt.Errorf("error [%w] at geometry.WKB()", err)
	}
	owned, err := newGeometryFromWKB(data)
	if err != nil {
		return vectorFeature{}, false, err
	}
	return vectorFeature{Name: name, Geometry: owned}, true, nil
}

/*
newGeometryFromWKB creates an owned OGR geometry from WKB.
*/
func newGeometryFromWKB(data []byte) (*godal.Geometry, error) {
	if len(data) == 0 {
		return nil, errors.New("empty WKB geometry")
	}
	geometry, err := godal.NewGeometryFromWKB(data, nil)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at godal.NewGeometryFromWKB()", err)
	}
	return geometry, nil
}

// isPolygonal reports whether features of this type can be intersected by area.
func isPolygonal(geometryType godal.GeometryType) bool {
	switch geometryType {
	case godal.GTPolygon, godal.GTPolygon25D, godal.GTMultiPolygon, godal.GTMultiPolygon25D:
		return true
	}
	return false
}

/*
closeFeatures releases the geometries of features.
*/
func closeFeatures(features []vectorFeature) {
	for _, feature := range features {
		if feature.Geometry != nil {
			feature.Geometry.Close()
		}
	}
}

/*
rasterResolution returns the pixel size (x, y) of a raster from its geotransform.
Pixel height gt[5] is usually negative.
*/
func rasterResolution(filename string) (float64, float64, error) {
	dataset, err := godal.Open(filename, godal.RasterOnly())
	if err != nil {
		return 0, 0, fmt.Errorf("error [%w] at godal.Open(), file = [%s]", err, filename)
	}
	defer dataset.Close()

	gt, err := dataset.GeoTransform()
	if err != nil {
		return 0, 0, fmt.Errorf("error [%w] getting geotransform from [%s]", err, filename)
	}
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, fmt.Errorf("invalid geotransform: pixel width (gt[1]=%f) or height (gt[5]=%f) is zero", gt[1], gt[5])
	}

	return gt[1], gt[5], nil
}

/*
buildMosaic builds a virtual mosaic (vrt) of all rasters and materializes it as GeoTIFF
with the given resolution.
*/
func buildMosaic(rasters []string, vrtName, tifName, srs string, xRes, yRes float64) error {
	vrt, err := godal.BuildVRT(vrtName, rasters, []string{"-a_srs", srs})
	if err != nil {
		return fmt.Errorf("error [%w] at godal.BuildVRT(), file = [%s]", err, vrtName)
	}

	tif, err := vrt.Translate(tifName, []string{"-tr", formatFloat(math.Abs(xRes)), formatFloat(math.Abs(yRes))}, godal.GTiff)
	if err != nil {
		_ = vrt.Close()
		return fmt.Errorf("error [%w] at vrt.Translate(), file = [%s]", err, tifName)
	}
	if err = tif.Close(); err != nil {
		_ = vrt.Close()
		return fmt.Errorf("error [%w] at tif.Close(), file = [%s]", err, tifName)
	}
	if err = vrt.Close(); err != nil {
		return fmt.Errorf("error [%w] at vrt.Close(), file = [%s]", err, vrtName)
	}
	return nil
}

/*
warpToCutline warps input against the cutline vector file into output: cropped to the cutline,
reprojected to srs, nodata (0) outside of the cutline.
*/
func warpToCutline(input, output, cutline, srs string) error {
	dataset, err := godal.Open(input, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("error [%w] at godal.Open(), file = [%s]", err, input)
	}
	defer dataset.Close()

	switches := []string{
		"-cutline", cutline,
		"-crop_to_cutline",
		"-dstnodata", "0",
		"-t_srs", srs,
	}
	warped, err := dataset.Warp(output, switches, godal.GTiff)
	if err != nil {
		return fmt.Errorf("error [%w] at dataset.Warp(), file = [%s]", err, output)
	}
	if err = warped.Close(); err != nil {
		return fmt.Errorf("error [%w] at warped.Close(), file = [%s]", err, output)
	}
	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
