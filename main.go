/*
Purpose:
- geoportal thuringia imagery download

Description:
- Downloads elevation (DGM/DOM) and orthophoto (DOP) tiles from the Thuringian geodata portal for an
  area of interest, merges them into one raster and clips the raster to the area of interest.

Remarks:
- Usage: geoportalth-download [download | discover | resume | vintage] [configuration file]
- The lookup table (id,year,tilename) is required for orthophotos only. It is built with 'discover'.
- A complete discovery run can cause the portal to block requests. Use 'RequestsPerSecond'.

TODOs:
- Ausgabe in anderen Koordinatensystemen als EPSG:25832 unterstützen.
- LAS Punktwolken (Format 'las') unterstützen.

Links:
- https://www.geoportal-th.de/de-de/Downloadbereiche/Download-Offene-Geodaten-Th%C3%BCringen
- https://pkg.go.dev/github.com/airbusgeo/godal
- https://pkg.go.dev/github.com/paulmach/orb
- https://pkg.go.dev/golang.org/x/sync/errgroup
- https://pkg.go.dev/gopkg.in/yaml.v3
- https://pkg.go.dev/gopkg.in/natefinch/lumberjack.v2
*/

// main package
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// general program info
var (
	progName      = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(filepath.Base(os.Args[0])))
	progVersion = "v0.1.0"
	progPurpose = "geoportal thuringia imagery download"
	progInfo    = "Downloads, merges and clips DEM and orthophoto tiles for an area of interest."
)

// program actions
const (
	ActionDownload = "download"
	ActionDiscover = "discover"
	ActionResume   = "resume"
	ActionVintage  = "vintage"
)

/*
main starts this program.
*/
func main() {
	action := ActionDownload
	progConfigFile := progName + ".yaml"
	if len(os.Args) > 1 {
		action = strings.ToLower(os.Args[1])
	}
	if len(os.Args) > 2 {
		progConfigFile = os.Args[2]
	}

	switch action {
	case ActionDownload, ActionDiscover, ActionResume, ActionVintage:
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [%s | %s | %s | %s] [configuration file]\n",
			progName, ActionDownload, ActionDiscover, ActionResume, ActionVintage)
		os.Exit(2)
	}

	// load program configuration
	progConfig, err := loadConfig(progConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration file invalid, file = [%s]\n", progConfigFile)
		fmt.Fprintf(os.Stderr, "error [%v] at loadConfig()\n", err)
		os.Exit(1)
	}

	// define logger
	logWriter, closeLog := logOutput(progConfig.LogDirectory)
	defer closeLog()
	logger := newLogger(logWriter, progConfig.LogLevel).With(slog.String("run", uuid.NewString()))
	slog.SetDefault(logger)

	// log program start
	slog.Info(progPurpose+" started", startupAttributes(action, os.Args)...)
	jsonData, _ := json.MarshalIndent(progConfig, "", "  ") // encode to JSON for readability
	slog.Info("content of configuration file", "configuration file", progConfigFile, "content", string(jsonData))

	// initialize GDAL, register all known GDAL drivers
	godal.RegisterAll()

	// subscribe to shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{}
	start := time.Now()

	switch action {
	case ActionDownload:
		var result PipelineResult
		result, err = runDownload(ctx, client, progConfig)
		if err == nil {
			slog.Info("download finished", "dem", result.DEMOutput, "op", result.OPOutput, "duration", time.Since(start).String())
			for _, output := range []string{result.DEMOutput, result.OPOutput} {
				if output != "" {
					fmt.Println(output)
				}
			}
		}
	case ActionDiscover:
		var found int
		found, err = discoverIDs(ctx, client, progConfig, progConfig.Discovery.StartID, progConfig.Discovery.EndID)
		if err == nil {
			slog.Info("discovery finished", "found", found, "duration", time.Since(start).String())
		}
	case ActionResume:
		var found int
		found, err = resumeDiscovery(ctx, client, progConfig)
		if err == nil {
			slog.Info("discovery finished", "found", found, "duration", time.Since(start).String())
		}
	case ActionVintage:
		var vintage Vintage
		vintage, err = selectVintage(progConfig.Year, progConfig.Portal)
		if err == nil {
			fmt.Printf("year %d: vintage %s, overview %s\n", progConfig.Year, vintage.Label, vintage.OverviewURL)
		}
	}

	if err != nil {
		slog.Error("action failed", "action", action, "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		closeLog()
		os.Exit(exitCode(err))
	}
}

/*
startupAttributes returns the program info logged at program start.
*/
func startupAttributes(action string, args []string) []any {
	return []any{"name", progName, "version", progVersion, "info", progInfo, "command line", args, "action", action}
}

/*
exitCode maps an error to the program exit status.
*/
func exitCode(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedConfiguration), errors.Is(err, ErrUnsupportedYear):
		return 2
	case errors.Is(err, ErrNoGridCoverage), errors.Is(err, ErrMissingLookupEntry):
		return 3
	default:
		return 1
	}
}

/*
logOutput returns the log destination: a rotating log file (lumberjack) if a log directory is configured,
otherwise stderr.
*/
func logOutput(logDirectory string) (io.Writer, func()) {
	if logDirectory == "" {
		return os.Stderr, func() {}
	}

	logfile := filepath.Join(logDirectory, progName+".log")
	lumberjackLogger := &lumberjack.Logger{
		Filename: logfile,
		MaxSize:  128,  // megabytes
		MaxAge:   28,   // days
		Compress: true, // gzip rotated log
	}
	return lumberjackLogger, func() { _ = lumberjackLogger.Close() }
}

/*
newLogger creates the structured JSON logger.
*/
func newLogger(writer io.Writer, level string) *slog.Logger {
	// logging: replacer for logging objects
	replacer := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)   // get source object
			source.File = filepath.Base(source.File) // basepath only
		}
		if a.Key == slog.TimeKey {
			return slog.String("time", a.Value.Time().Format(time.RFC3339Nano)) // local time -> RFC3339Nano
		}
		return a
	}

	// log level
	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(level))

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true, ReplaceAttr: replacer}).WithAttrs([]slog.Attr{slog.String("prog", progName)}))
}

/*
parseLogLevel parses log level setting from configuration.
*/
func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
