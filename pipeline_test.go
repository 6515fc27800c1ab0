package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/airbusgeo/godal"
)

// fakePortal serves overview, DEM and orthophoto archives and records requested paths.
type fakePortal struct {
	server   *httptest.Server
	archives map[string][]byte // by url path
	opIDs    map[string][]byte // by id query parameter

	mu        sync.Mutex
	requested []string
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	portal := &fakePortal{archives: map[string][]byte{}, opIDs: map[string][]byte{}}
	portal.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		portal.mu.Lock()
		portal.requested = append(portal.requested, r.URL.Path)
		portal.mu.Unlock()

		data, found := portal.archives[r.URL.Path]
		if r.URL.Path == "/download.php" {
			data, found = portal.opIDs[r.URL.Query().Get("id")]
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(portal.server.Close)
	return portal
}

// count returns the number of requests for path.
func (p *fakePortal) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, requested := range p.requested {
		if requested == path {
			n++
		}
	}
	return n
}

func (p *fakePortal) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requested)
}

// useGeoJSONGrids replaces the published grids by GeoJSON grids with a NAME attribute.
func useGeoJSONGrids(t *testing.T) {
	t.Helper()
	saved := vintages
	replaced := make([]Vintage, len(saved))
	copy(replaced, saved)
	for i := range replaced {
		replaced[i].GridFile = "grid.geojson"
		replaced[i].NameAttribute = "NAME"
		replaced[i].EncodedNames = false
		replaced[i].LeadingFolder = false
	}
	vintages = replaced
	t.Cleanup(func() { vintages = saved })
}

// testSetup creates a portal with the grid cell 5_7 (5000..6000, 7000..8000) of vintage 2014-2019
// and a matching configuration.
func testSetup(t *testing.T, aoi square) (*fakePortal, ProgConfig) {
	t.Helper()
	useGeoJSONGrids(t)
	portal := newFakePortal(t)

	grid := featureCollection("NAME",
		square{Name: "5_7", MinX: 5000, MinY: 7000, MaxX: 6000, MaxY: 8000},
		square{Name: "6_7", MinX: 6000, MinY: 7000, MaxX: 7000, MaxY: 8000},
	)
	portal.archives["/overview/Stand_2014-2019.zip"] = zipBytes(t, zipEntry{Name: "grid.geojson", Content: grid})

	root := t.TempDir()
	progConfig := ProgConfig{
		Root:        root,
		AOI:         writeFile(t, root, "aoi.geojson", featureCollection("", aoi)),
		DataChoice:  DataChoiceDEM,
		Year:        2015,
		LookupTable: filepath.Join(root, "lookup.csv"),
		KeepFiles:   []string{"zip"},
		Portal: PortalConfig{
			OverviewBaseURL: portal.server.URL + "/overview",
			DEMBaseURL:      portal.server.URL,
			OPDownloadURL:   portal.server.URL + "/download.php",
		},
	}
	applyDefaults(&progConfig)
	return portal, progConfig
}

const demTilePath = "/DGM/dgm_2014-2019/dgm1_5_7_1_th_2014-2019.zip"

func TestRunDownload_DEM(t *testing.T) {
	portal, progConfig := testSetup(t, square{MinX: 5200, MinY: 7200, MaxX: 5800, MaxY: 7800})
	portal.archives[demTilePath] = zipBytes(t,
		zipEntry{Name: "dgm1_5_7_1_th_2014-2019.tif", Content: testRasterBytes(t, 5000, 8000, 100, 10, 300)},
		zipEntry{Name: "dgm1_5_7_1_th_2014-2019.tfw", Content: []byte("100\n0\n0\n-100\n5050\n7950\n")},
	)

	result, err := runDownload(context.Background(), portal.server.Client(), progConfig)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(progConfig.DEMDirectory, "merged_dgm_clip.tif")
	if result.DEMOutput != want || result.OPOutput != "" {
		t.Errorf("result = %+v, want dem output %s", result, want)
	}
	if portal.count(demTilePath) != 1 {
		t.Errorf("dem tile requests = %d, want 1", portal.count(demTilePath))
	}
	if portal.count("/DGM/dgm_2014-2019/dgm1_6_7_1_th_2014-2019.zip") != 0 {
		t.Error("tile outside of the area of interest downloaded")
	}

	// keep: zip
	if !FileExists(filepath.Join(progConfig.DEMDirectory, "5_7_dgm2014-2019.zip")) {
		t.Error("archive deleted despite keep zip")
	}
	for _, name := range []string{"merged.tif", "merged.vrt", "dgm1_5_7_1_th_2014-2019.tif", "dgm1_5_7_1_th_2014-2019.tfw"} {
		if FileExists(filepath.Join(progConfig.DEMDirectory, name)) {
			t.Errorf("residual file %s not deleted", name)
		}
	}

	dataset, err := godal.Open(result.DEMOutput, godal.RasterOnly())
	if err != nil {
		t.Fatal(err)
	}
	defer dataset.Close()
	structure := dataset.Structure()
	if structure.SizeX <= 0 || structure.SizeX >= 10 || structure.SizeY <= 0 || structure.SizeY >= 10 {
		t.Errorf("clipped size = %dx%d", structure.SizeX, structure.SizeY)
	}

	// second run: archive cached, no further tile request
	_, err = runDownload(context.Background(), portal.server.Client(), progConfig)
	if err != nil {
		t.Fatal(err)
	}
	if portal.count(demTilePath) != 1 {
		t.Errorf("dem tile requests after second run = %d, want 1", portal.count(demTilePath))
	}
}

func TestRunDownload_Both(t *testing.T) {
	portal, progConfig := testSetup(t, square{MinX: 5200, MinY: 7200, MaxX: 5800, MaxY: 7800})
	progConfig.DataChoice = DataChoiceBoth
	progConfig.KeepFiles = []string{"all"}
	portal.archives[demTilePath] = zipBytes(t,
		zipEntry{Name: "dgm1_5_7_1_th_2014-2019.tif", Content: testRasterBytes(t, 5000, 8000, 100, 10, 300)},
	)
	// 2015: tile 5_7 is delivered within the group anchored at 4_6
	portal.opIDs["42"] = zipBytes(t,
		zipEntry{Name: "dop20rgbi_32_4_6_1_th_2015.tif", Content: testRasterBytes(t, 4000, 8000, 200, 10, 128)},
	)
	err := appendLookupEntries(progConfig.LookupTable, []LookupEntry{
		{ID: 41, Year: 2014, TileName: "4_6"},
		{ID: 42, Year: 2015, TileName: "4_6"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := runDownload(context.Background(), portal.server.Client(), progConfig)
	if err != nil {
		t.Fatal(err)
	}
	if result.DEMOutput != filepath.Join(progConfig.DEMDirectory, "merged_dgm_clip.tif") {
		t.Errorf("dem output = %s", result.DEMOutput)
	}
	if result.OPOutput != filepath.Join(progConfig.OPDirectory, "merged_op_clip.tif") {
		t.Errorf("op output = %s", result.OPOutput)
	}
	for _, output := range []string{result.DEMOutput, result.OPOutput} {
		if !FileExists(output) {
			t.Errorf("output %s missing", output)
		}
	}
	// keep: all
	if !FileExists(filepath.Join(progConfig.OPDirectory, "42.zip")) || !FileExists(filepath.Join(progConfig.OPDirectory, "merged.tif")) {
		t.Error("files deleted despite keep all")
	}
}

func TestRunDownload_NoCoverage(t *testing.T) {
	portal, progConfig := testSetup(t, square{MinX: 100000, MinY: 100000, MaxX: 101000, MaxY: 101000})

	_, err := runDownload(context.Background(), portal.server.Client(), progConfig)
	if !errors.Is(err, ErrNoGridCoverage) {
		t.Fatalf("error = %v, want ErrNoGridCoverage", err)
	}
	if portal.total() != 1 || portal.count("/overview/Stand_2014-2019.zip") != 1 {
		t.Errorf("requests = %v, want overview only", portal.requested)
	}
}

func TestRunDownload_MissingLookupEntry(t *testing.T) {
	portal, progConfig := testSetup(t, square{MinX: 5200, MinY: 7200, MaxX: 5800, MaxY: 7800})
	progConfig.DataChoice = DataChoiceOP
	err := appendLookupEntries(progConfig.LookupTable, []LookupEntry{{ID: 41, Year: 2014, TileName: "4_6"}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = runDownload(context.Background(), portal.server.Client(), progConfig)
	if !errors.Is(err, ErrMissingLookupEntry) {
		t.Fatalf("error = %v, want ErrMissingLookupEntry", err)
	}
	if portal.count("/download.php") != 0 {
		t.Error("orthophoto requested despite missing lookup entry")
	}
}

func TestRunDownload_RejectedBeforeDownload(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ProgConfig)
		want   error
	}{
		{"output srs", func(c *ProgConfig) { c.OutputSRS = "EPSG:4326" }, ErrUnsupportedConfiguration},
		{"las", func(c *ProgConfig) { c.DEMFormat = DEMFormatLAS }, ErrUnsupportedConfiguration},
		{"year", func(c *ProgConfig) { c.Year = 2009 }, ErrUnsupportedYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal, progConfig := testSetup(t, square{MinX: 5200, MinY: 7200, MaxX: 5800, MaxY: 7800})
			tt.modify(&progConfig)

			_, err := runDownload(context.Background(), portal.server.Client(), progConfig)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if portal.total() != 0 {
				t.Errorf("requests = %v, want none", portal.requested)
			}
		})
	}
}
