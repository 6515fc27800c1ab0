package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

/*
demTileURL builds the download url of a DEM tile, e.g.
https://geoportal.geoportal-th.de/hoehendaten/DGM/dgm_2014-2019/dgm1_632_5620_1_th_2014-2019.zip
*/
func demTileURL(baseURL, demFormat string, vintage Vintage, tile string) string {
	return fmt.Sprintf("%s/%s/%s_%s/%s%s_%s_1_th_%s.zip", strings.TrimSuffix(baseURL, "/"),
		strings.ToUpper(demFormat), demFormat, vintage.Label, demFormat, vintage.DEMIndicator, tile, vintage.Label)
}

/*
demArchiveName returns the local archive name of a DEM tile. Format and vintage are part of the name,
so dgm and dom tiles of the same cell can share a directory.
*/
func demArchiveName(tile, demFormat string, vintage Vintage) string {
	return tile + "_" + demFormat + vintage.Label + ".zip"
}

/*
opTileURL builds the download url of an orthophoto archive (e.g. ...download.php?type=op&id=171234).
*/
func opTileURL(downloadURL string, id int) string {
	query := url.Values{}
	query.Set("type", "op")
	query.Set("id", strconv.Itoa(id))
	return downloadURL + "?" + query.Encode()
}

/*
opArchiveName returns the local archive name of an orthophoto.
*/
func opArchiveName(id int) string {
	return strconv.Itoa(id) + ".zip"
}

/*
fetchArchive downloads the resource at url into target. An existing target is treated as already
fetched (no re-download, no integrity check). The body is written to a temporary file first and
renamed on success, so an interrupted transfer never leaves a file at target.
*/
func fetchArchive(ctx context.Context, client *http.Client, resourceURL, target string) (cached bool, err error) {
	if FileExists(target) {
		slog.Debug("archive already present", "file", target)
		return true, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return false, fmt.Errorf("error [%w] at http.NewRequestWithContext(), url = [%s]", err, resourceURL)
	}
	response, err := client.Do(request)
	if err != nil {
		return false, fmt.Errorf("error [%w] at client.Do(), url = [%s]", err, resourceURL)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return false, fmt.Errorf("unexpected HTTP status [%s], url = [%s]", response.Status, resourceURL)
	}

	err = os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return false, fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}

	partial := target + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return false, fmt.Errorf("error [%w] at os.Create()", err)
	}
	written, err := io.Copy(file, response.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return false, fmt.Errorf("error [%w] writing [%s], url = [%s]", err, target, resourceURL)
	}

	err = os.Rename(partial, target)
	if err != nil {
		return false, fmt.Errorf("error [%w] at os.Rename()", err)
	}

	slog.Info("archive downloaded", "url", resourceURL, "file", target, "bytes", written)
	return false, nil
}

/*
unzipArchive extracts all regular files of archive into destDir and returns their paths.
If skipFirst is set, the first archive entry is not extracted. Entries which would escape destDir
are rejected.
*/
func unzipArchive(archive, destDir string, skipFirst bool) ([]string, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at zip.OpenReader(), file = [%s]", err, archive)
	}
	defer reader.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at filepath.Abs()", err)
	}

	var unpacked []string
	for index, entry := range reader.File {
		if skipFirst && index == 0 {
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		absTarget, err := filepath.Abs(target)
		if err != nil {
			return unpacked, fmt.Errorf("error [%w] at filepath.Abs()", err)
		}
		if absTarget != root && !strings.HasPrefix(absTarget, root+string(os.PathSeparator)) {
			return unpacked, fmt.Errorf("archive entry [%s] escapes destination directory, file = [%s]", entry.Name, archive)
		}

		if entry.FileInfo().IsDir() {
			err = os.MkdirAll(target, 0o755)
			if err != nil {
				return unpacked, fmt.Errorf("error [%w] at os.MkdirAll()", err)
			}
			continue
		}

		err = extractEntry(entry, target)
		if err != nil {
			return unpacked, fmt.Errorf("error [%w] extracting [%s] from [%s]", err, entry.Name, archive)
		}
		unpacked = append(unpacked, target)
	}

	return unpacked, nil
}

/*
extractEntry writes a single archive entry to target.
*/
func extractEntry(entry *zip.File, target string) error {
	err := os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return err
	}

	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	file, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(file, source)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

/*
fetchAndUnpack fetches one archive (or reuses a cached one) and unpacks it into dir.
*/
func fetchAndUnpack(ctx context.Context, client *http.Client, resourceURL, archive, dir string, artifacts *Artifacts) error {
	artifacts.Archives = append(artifacts.Archives, archive)

	_, err := fetchArchive(ctx, client, resourceURL, archive)
	if err != nil {
		return err
	}

	unpacked, err := unzipArchive(archive, dir, false)
	artifacts.Unpacked = append(artifacts.Unpacked, unpacked...)
	return err
}

/*
downloadDEM downloads and unpacks the DEM tiles into demDir.
*/
func downloadDEM(ctx context.Context, client *http.Client, baseURL, demDir string, tiles []string, demFormat string, vintage Vintage) (Artifacts, error) {
	var artifacts Artifacts

	err := os.MkdirAll(demDir, 0o755)
	if err != nil {
		return artifacts, fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}

	for _, tile := range tiles {
		resourceURL := demTileURL(baseURL, demFormat, vintage, tile)
		archive := filepath.Join(demDir, demArchiveName(tile, demFormat, vintage))
		err = fetchAndUnpack(ctx, client, resourceURL, archive, demDir, &artifacts)
		if err != nil {
			return artifacts, fmt.Errorf("dem tile [%s]: %w", tile, err)
		}
	}

	slog.Info("dem tiles available", "tiles", len(tiles), "archives", len(artifacts.Archives), "files", len(artifacts.Unpacked))
	return artifacts, nil
}

/*
downloadOP downloads and unpacks the orthophoto archives into opDir.
*/
func downloadOP(ctx context.Context, client *http.Client, downloadURL, opDir string, ids []int) (Artifacts, error) {
	var artifacts Artifacts

	err := os.MkdirAll(opDir, 0o755)
	if err != nil {
		return artifacts, fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}

	for _, id := range ids {
		resourceURL := opTileURL(downloadURL, id)
		archive := filepath.Join(opDir, opArchiveName(id))
		err = fetchAndUnpack(ctx, client, resourceURL, archive, opDir, &artifacts)
		if err != nil {
			return artifacts, fmt.Errorf("op id [%d]: %w", id, err)
		}
	}

	slog.Info("op tiles available", "ids", len(ids), "archives", len(artifacts.Archives), "files", len(artifacts.Unpacked))
	return artifacts, nil
}

/*
ensureOverview makes the tile grid of a vintage available below dataDir. The overview archive is
downloaded once (dataDir/Stand_<label>/Stand_<label>.zip) and unpacked on every run.
It returns the path of the tile grid vector file.
*/
func ensureOverview(ctx context.Context, client *http.Client, dataDir string, vintage Vintage) (string, error) {
	standDir := filepath.Join(dataDir, standName(vintage.Label))
	err := os.MkdirAll(standDir, 0o755)
	if err != nil {
		return "", fmt.Errorf("error [%w] at os.MkdirAll()", err)
	}

	archive := filepath.Join(standDir, standName(vintage.Label)+".zip")
	_, err = fetchArchive(ctx, client, vintage.OverviewURL, archive)
	if err != nil {
		return "", fmt.Errorf("overview [%s]: %w", vintage.Label, err)
	}

	// the archive of the newest vintage contains the Stand_<label> folder itself
	destDir := standDir
	if vintage.LeadingFolder {
		destDir = dataDir
	}
	_, err = unzipArchive(archive, destDir, vintage.LeadingFolder)
	if err != nil {
		return "", fmt.Errorf("overview [%s]: %w", vintage.Label, err)
	}

	return filepath.Join(standDir, vintage.GridFile), nil
}
