package main

import (
	"fmt"
	"strings"
)

// Vintage represents one era of the published tile grid.
type Vintage struct {
	Label         string // e.g. 2014-2019
	FirstYear     int    // first year covered (inclusive)
	LastYear      int    // last year covered (inclusive)
	OverviewURL   string // overview archive with the tile grid
	GridFile      string // tile grid vector file inside the overview archive
	NameAttribute string // attribute holding the tile name
	EncodedNames  bool   // tile names carry a prefix which must be removed
	DEMIndicator  string // number within DEM file names (dgm1_, dgm2_)
	LeadingFolder bool   // overview archive starts with its Stand_<label> folder entry
}

// vintages are the published tile grids, ordered by year.
var vintages = []Vintage{
	{
		Label:         "2010-2013",
		FirstYear:     2010,
		LastYear:      2013,
		GridFile:      "DGM2_2010-2013_Erfass-lt-Meta_UTM32-UTM_2014-12-10.shp",
		NameAttribute: "DGM_1X1",
		EncodedNames:  true,
		DEMIndicator:  "2",
	},
	{
		Label:         "2014-2019",
		FirstYear:     2014,
		LastYear:      2019,
		GridFile:      "DGM1_2014-2019_Erfass-lt-Meta_UTM_2020-04-20--17127.shp",
		NameAttribute: "NAME",
		DEMIndicator:  "1",
	},
	{
		Label:         "2020-2025",
		FirstYear:     2020,
		LastYear:      2025,
		GridFile:      "Laser_2020-2025_Erfass-lt-Meta_UTM_2022-08--17127.shp",
		NameAttribute: "NAME",
		DEMIndicator:  "1",
		LeadingFolder: true,
	},
}

/*
selectVintage maps a year to the tile grid vintage (and the url of its overview archive).
Years outside of all vintages are rejected.
*/
func selectVintage(year int, portal PortalConfig) (Vintage, error) {
	for _, vintage := range vintages {
		if year >= vintage.FirstYear && year <= vintage.LastYear {
			vintage.OverviewURL = overviewURL(portal.OverviewBaseURL, vintage.Label)
			return vintage, nil
		}
	}
	return Vintage{}, fmt.Errorf("%w: year [%d], current support ranges from %d to %d",
		ErrUnsupportedYear, year, vintages[0].FirstYear, vintages[len(vintages)-1].LastYear)
}

/*
overviewURL builds the url of an overview archive (e.g. .../Uebersichten/Stand_2014-2019.zip).
*/
func overviewURL(baseURL, label string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + standName(label) + ".zip"
}

/*
standName returns the name of the overview folder and archive for a vintage label.
*/
func standName(label string) string {
	return "Stand_" + label
}
