package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// minOverlapArea is the minimum overlap (in square meters) of a cell and the area of interest.
// Cells only touching the area of interest are not selected.
const minOverlapArea = 1e-6

// GridCell represents one named cell of a tile grid.
type GridCell struct {
	Name     string          // tile name (e.g. 632_5620)
	Geometry *godal.Geometry // cell outline in EPSG:25832
}

// closeCells releases the geometries of grid cells.
func closeCells(cells []GridCell) {
	for _, cell := range cells {
		if cell.Geometry != nil {
			cell.Geometry.Close()
		}
	}
}

// closeGeometries releases geometries.
func closeGeometries(geometries []*godal.Geometry) {
	for _, geometry := range geometries {
		geometry.Close()
	}
}

/*
findTiles returns the names of all tiles of the vintage's grid which intersect the area of interest.
The overview archive is downloaded if required.
*/
func findTiles(ctx context.Context, client *http.Client, dataDir string, vintage Vintage, aoiPath string) ([]string, error) {
	gridPath, err := ensureOverview(ctx, client, dataDir, vintage)
	if err != nil {
		return nil, err
	}

	aoi, err := loadAOI(aoiPath)
	if err != nil {
		return nil, err
	}
	defer closeGeometries(aoi)

	cells, err := loadGrid(gridPath, vintage)
	if err != nil {
		return nil, err
	}
	defer closeCells(cells)

	tiles, err := intersectGrid(cells, aoi)
	if err != nil {
		return nil, fmt.Errorf("vintage [%s], area of interest [%s]: %w", vintage.Label, aoiPath, err)
	}

	slog.Info("tiles intersecting area of interest", "vintage", vintage.Label, "grid cells", len(cells), "tiles", len(tiles))
	return tiles, nil
}

/*
loadAOI loads the polygons of the area of interest (EPSG:25832). GeoJSON is read directly,
all other formats through GDAL/OGR. The caller must close the returned geometries.
*/
func loadAOI(filename string) ([]*godal.Geometry, error) {
	var features []vectorFeature
	var err error
	if isGeoJSON(filename) {
		features, err = readGeoJSONFeatures(filename, "")
	} else {
		features, err = readVectorFeatures(filename, "")
	}
	if err != nil {
		return nil, fmt.Errorf("area of interest: %w", err)
	}

	aoi := make([]*godal.Geometry, 0, len(features))
	for _, feature := range features {
		aoi = append(aoi, feature.Geometry)
	}
	if len(aoi) == 0 {
		return nil, fmt.Errorf("area of interest [%s] contains no polygon", filename)
	}
	return aoi, nil
}

/*
loadGrid loads the tile grid of a vintage and derives the tile names.
The caller must close the returned cells (see closeCells).
*/
func loadGrid(filename string, vintage Vintage) ([]GridCell, error) {
	var features []vectorFeature
	var err error
	if isGeoJSON(filename) {
		features, err = readGeoJSONFeatures(filename, vintage.NameAttribute)
	} else {
		features, err = readVectorFeatures(filename, vintage.NameAttribute)
	}
	if err != nil {
		return nil, fmt.Errorf("tile grid: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("tile grid [%s] is empty", filename)
	}

	cells := make([]GridCell, 0, len(features))
	width := len(features[0].Name)
	for _, feature := range features {
		name := feature.Name
		if vintage.EncodedNames {
			name, err = decodeTileName(name, width)
			if err != nil {
				closeFeatures(features)
				return nil, fmt.Errorf("tile grid [%s]: %w", filename, err)
			}
		}
		cells = append(cells, GridCell{Name: name, Geometry: feature.Geometry})
	}
	return cells, nil
}

/*
decodeTileName extracts the tile coordinates from an encoded grid name of the oldest vintage.
The two leading characters are dropped; width is the length of the first name of the grid
and fixes the length of all names.
*/
func decodeTileName(raw string, width int) (string, error) {
	if len(raw) <= 2 || width <= 2 {
		return "", fmt.Errorf("encoded tile name [%s] too short", raw)
	}
	end := min(width, len(raw))
	return raw[2:end], nil
}

/*
intersectGrid returns the unique, sorted names of all cells overlapping the area of interest.
*/
func intersectGrid(cells []GridCell, aoi []*godal.Geometry) ([]string, error) {
	unique := make(map[string]struct{})
	for _, cell := range cells {
		overlaps, err := cellOverlaps(cell.Geometry, aoi)
		if err != nil {
			return nil, fmt.Errorf("grid cell [%s]: %w", cell.Name, err)
		}
		if overlaps {
			unique[cell.Name] = struct{}{}
		}
	}

	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: area of interest seems not to lie within Thuringian state borders or "+
			"adequate coverage is not available for the chosen vintage", ErrNoGridCoverage)
	}

	tiles := make([]string, 0, len(unique))
	for name := range unique {
		tiles = append(tiles, name)
	}
	sort.Strings(tiles)
	return tiles, nil
}

/*
cellOverlaps reports whether the cell shares more than minOverlapArea with any polygon of the
area of interest.
*/
func cellOverlaps(cell *godal.Geometry, aoi []*godal.Geometry) (bool, error) {
	cellBounds, err := cell.Bounds()
	if err != nil {
		return false, fmt.Errorf("error [%w] at cell.Bounds()", err)
	}
	for _, part := range aoi {
		partBounds, err := part.Bounds()
		if err != nil {
			return false, fmt.Errorf("error [%w] at part.Bounds()", err)
		}
		if !boundsIntersect(cellBounds, partBounds) {
			continue
		}

		intersects, err := cell.Intersects(part)
		if err != nil {
			return false, fmt.Errorf("error [%w] at cell.Intersects()", err)
		}
		if !intersects {
			continue
		}

		overlap, err := cell.Intersection(part)
		if err != nil {
			return false, fmt.Errorf("error [%w] at cell.Intersection()", err)
		}
		area := overlap.Area()
		overlap.Close()
		if area > minOverlapArea {
			return true, nil
		}
	}
	return false, nil
}

// boundsIntersect compares two envelopes (minx, miny, maxx, maxy).
func boundsIntersect(a, b [4]float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

/*
readGeoJSONFeatures reads all polygon features of a GeoJSON feature collection. Features without
geometry are skipped, non-polygon features are an error. The caller must close the returned
geometries (see closeFeatures).
*/
func readGeoJSONFeatures(filename, attribute string) ([]vectorFeature, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at os.ReadFile()", err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at geojson.UnmarshalFeatureCollection(), file = [%s]", err, filename)
	}

	features := make([]vectorFeature, 0, len(collection.Features))
	nullGeometries := 0
	for _, feature := range collection.Features {
		name := ""
		if attribute != "" {
			value, found := feature.Properties[attribute]
			if !found {
				closeFeatures(features)
				return nil, fmt.Errorf("attribute [%s] not found in file [%s]", attribute, filename)
			}
			name = fmt.Sprint(value)
		}

		if feature.Geometry == nil {
			nullGeometries++
			continue
		}
		polygons, ok := toMultiPolygon(feature.Geometry)
		if !ok {
			closeFeatures(features)
			return nil, fmt.Errorf("file [%s] contains non-polygon geometry [%s]", filename, feature.Geometry.GeoJSONType())
		}

		encoded, err := wkb.Marshal(polygons)
		if err != nil {
			closeFeatures(features)
			return nil, fmt.Errorf("error [%w] at wkb.Marshal(), file = [%s]", err, filename)
		}
		geometry, err := newGeometryFromWKB(encoded)
		if err != nil {
			closeFeatures(features)
			return nil, fmt.Errorf("file [%s]: %w", filename, err)
		}
		features = append(features, vectorFeature{Name: name, Geometry: geometry})
	}

	if nullGeometries > 0 {
		slog.Warn("features without geometry skipped", "file", filename, "count", nullGeometries)
	}
	return features, nil
}

/*
toMultiPolygon converts polygonal geometries to a multipolygon.
*/
func toMultiPolygon(geometry orb.Geometry) (orb.MultiPolygon, bool) {
	switch g := geometry.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, true
	case orb.MultiPolygon:
		return g, true
	}
	return nil, false
}

func isGeoJSON(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".geojson", ".json":
		return true
	}
	return false
}
