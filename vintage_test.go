package main

import (
	"errors"
	"testing"
)

func TestSelectVintage(t *testing.T) {
	portal := PortalConfig{OverviewBaseURL: DefaultOverviewBaseURL}

	ranges := []struct {
		first, last int
		label       string
		grid        string
	}{
		{2010, 2013, "2010-2013", "DGM2_2010-2013_Erfass-lt-Meta_UTM32-UTM_2014-12-10.shp"},
		{2014, 2019, "2014-2019", "DGM1_2014-2019_Erfass-lt-Meta_UTM_2020-04-20--17127.shp"},
		{2020, 2025, "2020-2025", "Laser_2020-2025_Erfass-lt-Meta_UTM_2022-08--17127.shp"},
	}
	for _, r := range ranges {
		for year := r.first; year <= r.last; year++ {
			vintage, err := selectVintage(year, portal)
			if err != nil {
				t.Fatalf("selectVintage(%d): %v", year, err)
			}
			if vintage.Label != r.label {
				t.Errorf("selectVintage(%d) label = %s, want %s", year, vintage.Label, r.label)
			}
			if vintage.GridFile != r.grid {
				t.Errorf("selectVintage(%d) grid = %s, want %s", year, vintage.GridFile, r.grid)
			}
			wantURL := "https://geoportal.geoportal-th.de/hoehendaten/Uebersichten/Stand_" + r.label + ".zip"
			if vintage.OverviewURL != wantURL {
				t.Errorf("selectVintage(%d) url = %s, want %s", year, vintage.OverviewURL, wantURL)
			}
		}
	}
}

func TestSelectVintage_OutOfRange(t *testing.T) {
	for _, year := range []int{1997, 2008, 2009, 2026, 2030} {
		_, err := selectVintage(year, PortalConfig{})
		if !errors.Is(err, ErrUnsupportedYear) {
			t.Errorf("selectVintage(%d) error = %v, want ErrUnsupportedYear", year, err)
		}
	}
}

func TestSelectVintage_NamingConventions(t *testing.T) {
	oldest, err := selectVintage(2012, PortalConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !oldest.EncodedNames || oldest.NameAttribute != "DGM_1X1" || oldest.DEMIndicator != "2" {
		t.Errorf("2010-2013 conventions = %+v", oldest)
	}

	newest, err := selectVintage(2021, PortalConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if newest.EncodedNames || newest.NameAttribute != "NAME" || !newest.LeadingFolder {
		t.Errorf("2020-2025 conventions = %+v", newest)
	}
}

func TestOverviewURL_TrailingSlash(t *testing.T) {
	got := overviewURL("http://mirror.example/overview/", "2014-2019")
	want := "http://mirror.example/overview/Stand_2014-2019.zip"
	if got != want {
		t.Errorf("overviewURL = %s, want %s", got, want)
	}
}
