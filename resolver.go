package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// groupedTilesLastYear is the last year in which orthophotos were published in groups of four tiles.
const groupedTilesLastYear = 2018

/*
resolveTileIDs resolves tile names to orthophoto download ids for one year.
Up to 2018 four tiles share one archive which is registered under the lower left tile
(even x and y). Those tile names are corrected to their anchor before the lookup.
*/
func resolveTileIDs(tiles []string, year int, table []LookupEntry) ([]int, error) {
	// filter lookup table by year
	byTile := make(map[string]int)
	for _, entry := range table {
		if entry.Year != year {
			continue
		}
		if _, exists := byTile[entry.TileName]; !exists {
			byTile[entry.TileName] = entry.ID // first match wins
		}
	}

	if year <= groupedTilesLastYear {
		corrected, err := correctGroupedTiles(tiles)
		if err != nil {
			return nil, err
		}
		slog.Debug("grouped tiles corrected", "year", year, "tiles", len(tiles), "anchors", len(corrected))
		tiles = corrected
	}

	ids := make([]int, 0, len(tiles))
	for _, tile := range tiles {
		id, found := byTile[tile]
		if !found {
			return nil, fmt.Errorf("%w: no orthophoto for tile [%s] in year [%d]", ErrMissingLookupEntry, tile, year)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

/*
correctGroupedTiles maps every tile to the anchor of its group of four (odd coordinates are
decremented by one). The result keeps the order of first appearance and contains each anchor once.
*/
func correctGroupedTiles(tiles []string) ([]string, error) {
	corrected := make([]string, 0, len(tiles))
	seen := make(map[string]struct{}, len(tiles))
	for _, tile := range tiles {
		anchor, err := groupAnchor(tile)
		if err != nil {
			return nil, err
		}
		if _, exists := seen[anchor]; exists {
			continue
		}
		seen[anchor] = struct{}{}
		corrected = append(corrected, anchor)
	}
	return corrected, nil
}

/*
groupAnchor returns the anchor tile of a "<x>_<y>" tile name.
*/
func groupAnchor(tile string) (string, error) {
	x, y, err := parseTileName(tile)
	if err != nil {
		return "", err
	}
	// x&1 is 1 for odd negative values as well, so -1 becomes -2
	if x&1 == 1 {
		x--
	}
	if y&1 == 1 {
		y--
	}
	return strconv.Itoa(x) + "_" + strconv.Itoa(y), nil
}

/*
parseTileName parses a "<x>_<y>" tile name into its coordinates (km).
*/
func parseTileName(tile string) (int, int, error) {
	xPart, yPart, found := strings.Cut(tile, "_")
	if !found {
		return 0, 0, fmt.Errorf("invalid tile name [%s], expected <x>_<y>", tile)
	}
	x, err := strconv.Atoi(xPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid tile name [%s]: %w", tile, err)
	}
	y, err := strconv.Atoi(yPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid tile name [%s]: %w", tile, err)
	}
	return x, y, nil
}
