package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

/*
discoverIDs queries the portal for all ids from start to end (inclusive) and appends every
orthophoto found to the lookup table. Ids are queried in batches of BatchSize with Workers
concurrent requests; a batch is written completely before the next batch starts, so an
interrupted run can be continued after the last written id (see resumeDiscovery).
It returns the number of orthophotos found.
*/
func discoverIDs(ctx context.Context, client *http.Client, progConfig ProgConfig, start, end int) (int, error) {
	discovery := progConfig.Discovery
	if progConfig.LookupTable == "" {
		return 0, fmt.Errorf("%w: lookup table not configured", ErrUnsupportedConfiguration)
	}
	if end < start {
		return 0, fmt.Errorf("invalid id range [%d, %d]", start, end)
	}
	if discovery.BatchSize <= 0 {
		return 0, fmt.Errorf("%w: batch size [%d] must be positive", ErrUnsupportedConfiguration, discovery.BatchSize)
	}
	if discovery.Workers <= 0 {
		return 0, fmt.Errorf("%w: number of workers [%d] must be positive", ErrUnsupportedConfiguration, discovery.Workers)
	}

	var limiter *rate.Limiter
	if discovery.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(discovery.RequestsPerSecond), 1)
	}

	slog.Info("op id discovery started", "start", start, "end", end, "workers", discovery.Workers, "batch size", discovery.BatchSize)

	found := 0
	for first := start; first <= end; first += discovery.BatchSize {
		last := min(first+discovery.BatchSize-1, end)

		entries, err := queryBatch(ctx, client, progConfig.Portal.OPDownloadURL, first, last, discovery.Workers, limiter)
		if err != nil {
			return found, fmt.Errorf("batch [%d, %d]: %w", first, last, err)
		}

		if len(entries) > 0 {
			err = appendLookupEntries(progConfig.LookupTable, entries)
			if err != nil {
				return found, fmt.Errorf("batch [%d, %d]: %w", first, last, err)
			}
		}
		found += len(entries)
		slog.Info("op id batch processed", "first", first, "last", last, "found", len(entries), "total", found)
	}

	return found, nil
}

/*
resumeDiscovery continues an interrupted discovery after the last id of the lookup table.
*/
func resumeDiscovery(ctx context.Context, client *http.Client, progConfig ProgConfig) (int, error) {
	lastID, err := lastRecordedID(progConfig.LookupTable)
	if err != nil {
		return 0, err
	}
	if lastID+1 > progConfig.Discovery.EndID {
		slog.Info("final id has already been reached", "last id", lastID, "end", progConfig.Discovery.EndID)
		return 0, nil
	}
	return discoverIDs(ctx, client, progConfig, lastID+1, progConfig.Discovery.EndID)
}

/*
queryBatch queries the ids first..last with a fixed number of workers and waits for all of them.
*/
func queryBatch(ctx context.Context, client *http.Client, endpoint string, first, last, workers int, limiter *rate.Limiter) ([]LookupEntry, error) {
	results := make([]*LookupEntry, last-first+1)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for id := first; id <= last; id++ {
		group.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(groupCtx); err != nil {
					return err
				}
			}
			filename, found, err := queryTileName(groupCtx, client, endpoint, id)
			if err != nil || !found {
				return err
			}
			year, tileName, err := parseOPFilename(filename)
			if err != nil {
				slog.Warn("unexpected orthophoto filename", "id", id, "filename", filename, "error", err)
				return nil
			}
			results[id-first] = &LookupEntry{ID: id, Year: year, TileName: tileName}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var entries []LookupEntry
	for _, result := range results {
		if result != nil {
			entries = append(entries, *result)
		}
	}
	return entries, nil
}

/*
queryTileName sends a HEAD request for id and returns the filename announced in the
Content-Disposition header. Only orthophoto archives (filename contains "dop") count as found.
*/
func queryTileName(ctx context.Context, client *http.Client, endpoint string, id int) (string, bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, opTileURL(endpoint, id), nil)
	if err != nil {
		return "", false, fmt.Errorf("error [%w] at http.NewRequestWithContext()", err)
	}
	response, err := client.Do(request)
	if err != nil {
		return "", false, fmt.Errorf("error [%w] at client.Do(), id = [%d]", err, id)
	}
	response.Body.Close()

	disposition := response.Header.Get("Content-Disposition")
	if disposition == "" {
		return "", false, nil
	}

	filename := contentDispositionFilename(disposition)
	if !strings.Contains(filename, "dop") {
		return "", false, nil
	}
	return filename, true, nil
}

/*
contentDispositionFilename extracts the filename parameter of a Content-Disposition header.
Headers which are not RFC 6266 compliant fall back to the text after the first '='.
*/
func contentDispositionFilename(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}
	_, value, found := strings.Cut(disposition, "=")
	if !found {
		return ""
	}
	return strings.Trim(strings.TrimSpace(value), `"`)
}

/*
parseOPFilename derives year and tile name from an orthophoto archive name, e.g.
dop20rgbi_32_632_5620_1_th_2016.zip -> 2016, 632_5620
dop_32632_5620_1_th_2014.zip        -> 2014, 632_5620
*/
func parseOPFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".zip")
	if len(base) < 4 {
		return 0, "", fmt.Errorf("filename [%s] too short", filename)
	}
	year, err := strconv.Atoi(base[len(base)-4:])
	if err != nil {
		return 0, "", fmt.Errorf("filename [%s]: invalid year: %w", filename, err)
	}

	_, rest, found := strings.Cut(filename, "_32")
	if !found {
		return 0, "", fmt.Errorf("filename [%s]: utm zone 32 marker not found", filename)
	}
	rest = strings.TrimPrefix(rest, "_")

	// tile names are 8 characters long (xxx_yyyy)
	if len(rest) < 8 {
		return 0, "", fmt.Errorf("filename [%s]: tile name not found", filename)
	}
	tileName := rest[:8]
	if _, _, err = parseTileName(tileName); err != nil {
		return 0, "", fmt.Errorf("filename [%s]: %w", filename, err)
	}
	return year, tileName, nil
}
