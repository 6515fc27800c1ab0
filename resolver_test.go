package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestGroupAnchor(t *testing.T) {
	tests := []struct {
		tile string
		want string
	}{
		{"632_5620", "632_5620"}, // both even
		{"633_5620", "632_5620"}, // x odd
		{"632_5621", "632_5620"}, // y odd
		{"633_5621", "632_5620"}, // both odd
		{"1_1", "0_0"},
		{"0_0", "0_0"},
		{"-1_3", "-2_2"},
	}
	for _, tt := range tests {
		got, err := groupAnchor(tt.tile)
		if err != nil {
			t.Fatalf("groupAnchor(%s): %v", tt.tile, err)
		}
		if got != tt.want {
			t.Errorf("groupAnchor(%s) = %s, want %s", tt.tile, got, tt.want)
		}
	}
}

func TestCorrectGroupedTiles_Dedup(t *testing.T) {
	// 1_1 maps to 0_0, which is covered directly as well
	got, err := correctGroupedTiles([]string{"1_1", "0_0"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"0_0"}) {
		t.Errorf("correctGroupedTiles = %v, want [0_0]", got)
	}

	// a full group of four plus a neighbour group
	got, err = correctGroupedTiles([]string{"632_5620", "633_5620", "632_5621", "633_5621", "634_5621"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"632_5620", "634_5620"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("correctGroupedTiles = %v, want %v", got, want)
	}
}

func TestCorrectGroupedTiles_InputUnchanged(t *testing.T) {
	tiles := []string{"633_5621", "632_5620"}
	if _, err := correctGroupedTiles(tiles); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tiles, []string{"633_5621", "632_5620"}) {
		t.Errorf("input modified: %v", tiles)
	}
}

func TestCorrectGroupedTiles_InvalidName(t *testing.T) {
	for _, tile := range []string{"6325620", "a_1", "1_b"} {
		if _, err := correctGroupedTiles([]string{tile}); err == nil {
			t.Errorf("correctGroupedTiles(%s) succeeded, want error", tile)
		}
	}
}

func TestResolveTileIDs(t *testing.T) {
	table := []LookupEntry{
		{ID: 100, Year: 2016, TileName: "632_5620"},
		{ID: 101, Year: 2016, TileName: "634_5620"},
		{ID: 102, Year: 2016, TileName: "634_5620"}, // duplicate, first match wins
		{ID: 200, Year: 2020, TileName: "633_5621"},
		{ID: 201, Year: 2020, TileName: "632_5620"},
	}

	tests := []struct {
		name  string
		tiles []string
		year  int
		want  []int
	}{
		{"grouped era", []string{"633_5621", "632_5620", "635_5620"}, 2016, []int{100, 101}},
		{"single tiles", []string{"633_5621", "632_5620"}, 2020, []int{200, 201}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTileIDs(tt.tiles, tt.year, table)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolveTileIDs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveTileIDs_Missing(t *testing.T) {
	table := []LookupEntry{
		{ID: 100, Year: 2016, TileName: "632_5620"},
		{ID: 300, Year: 2019, TileName: "634_5620"}, // other year
	}
	ids, err := resolveTileIDs([]string{"632_5620", "634_5620"}, 2016, table)
	if !errors.Is(err, ErrMissingLookupEntry) {
		t.Fatalf("error = %v, want ErrMissingLookupEntry", err)
	}
	if ids != nil {
		t.Errorf("ids = %v, want no partial result", ids)
	}
	if !strings.Contains(err.Error(), "634_5620") || !strings.Contains(err.Error(), "2016") {
		t.Errorf("error %q does not name tile and year", err)
	}
}
