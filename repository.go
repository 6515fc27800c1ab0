package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// LookupEntry represents one row of the orthophoto lookup table.
type LookupEntry struct {
	ID       int    // portal download id (e.g. 171234)
	Year     int    // year of the aerial survey (e.g. 2016)
	TileName string // tile name (e.g. 632_5620)
}

// lookupHeader is the header of the lookup table file.
var lookupHeader = []string{"id", "year", "tilename"}

/*
readLookupTable reads the lookup table (id,year,tilename). Columns are located by header name.
*/
func readLookupTable(filename string) ([]LookupEntry, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("lookup table: error [%w] at os.Open()", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("lookup table [%s]: error [%w] reading header", filename, err)
	}
	columns := make(map[string]int, len(header))
	for index, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = index
	}
	for _, name := range lookupHeader {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("lookup table [%s]: column [%s] missing in header %v", filename, name, header)
		}
	}

	var entries []LookupEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lookup table [%s]: error [%w] at reader.Read()", filename, err)
		}

		line, _ := reader.FieldPos(0)
		id, err := strconv.Atoi(strings.TrimSpace(record[columns["id"]]))
		if err != nil {
			return nil, fmt.Errorf("lookup table [%s], line %d: invalid id: %w", filename, line, err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(record[columns["year"]]))
		if err != nil {
			return nil, fmt.Errorf("lookup table [%s], line %d: invalid year: %w", filename, line, err)
		}
		entries = append(entries, LookupEntry{ID: id, Year: year, TileName: strings.TrimSpace(record[columns["tilename"]])})
	}

	return entries, nil
}

/*
appendLookupEntries appends entries (sorted by id) to the lookup table. A new file starts with
the header line.
*/
func appendLookupEntries(filename string, entries []LookupEntry) error {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error [%w] at os.OpenFile()", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error [%w] at file.Stat()", err)
	}

	// create csv writer
	writer := csv.NewWriter(file)

	// write header
	if info.Size() == 0 {
		err = writer.Write(lookupHeader)
		if err != nil {
			return fmt.Errorf("error [%w] at writer.Write()", err)
		}
	}

	sorted := make([]LookupEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, entry := range sorted {
		row := []string{strconv.Itoa(entry.ID), strconv.Itoa(entry.Year), entry.TileName}
		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("error [%w] at writer.Write()", err)
		}
	}

	writer.Flush()
	err = writer.Error()
	if err != nil {
		return fmt.Errorf("error [%w] at writer.Error()", err)
	}

	return file.Close()
}

/*
lastRecordedID returns the id of the last row of the lookup table.
*/
func lastRecordedID(filename string) (int, error) {
	entries, err := readLookupTable(filename)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("lookup table [%s] contains no ids", filename)
	}
	return entries[len(entries)-1].ID, nil
}
