package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProgConfig defines program configuration
type ProgConfig struct {
	LogDirectory      string          `yaml:"LogDirectory"`
	LogLevel          string          `yaml:"LogLevel"`
	Root              string          `yaml:"Root"`
	DataDirectory     string          `yaml:"DataDirectory"`
	DEMDirectory      string          `yaml:"DEMDirectory"`
	OPDirectory       string          `yaml:"OPDirectory"`
	AOI               string          `yaml:"AOI"`
	DataChoice        string          `yaml:"DataChoice"`
	Year              int             `yaml:"Year"`
	DEMFormat         string          `yaml:"DEMFormat"`
	LookupTable       string          `yaml:"LookupTable"`
	OutputName        string          `yaml:"OutputName"`
	OutputSRS         string          `yaml:"OutputSRS"`
	KeepFiles         []string        `yaml:"KeepFiles"`
	SidecarExtensions []string        `yaml:"SidecarExtensions"`
	Portal            PortalConfig    `yaml:"Portal"`
	Discovery         DiscoveryConfig `yaml:"Discovery"`
}

// PortalConfig defines the portal endpoints.
type PortalConfig struct {
	OverviewBaseURL string `yaml:"OverviewBaseURL"`
	DEMBaseURL      string `yaml:"DEMBaseURL"`
	OPDownloadURL   string `yaml:"OPDownloadURL"`
}

// DiscoveryConfig defines settings of the op id discovery.
type DiscoveryConfig struct {
	Workers           int     `yaml:"Workers"`
	BatchSize         int     `yaml:"BatchSize"`
	StartID           int     `yaml:"StartID"`
	EndID             int     `yaml:"EndID"`
	RequestsPerSecond float64 `yaml:"RequestsPerSecond"`
}

// data choices
const (
	DataChoiceDEM  = "dem"
	DataChoiceOP   = "op"
	DataChoiceBoth = "both"
)

// defaults
const (
	DefaultOverviewBaseURL = "https://geoportal.geoportal-th.de/hoehendaten/Uebersichten"
	DefaultDEMBaseURL      = "https://geoportal.geoportal-th.de/hoehendaten"
	DefaultOPDownloadURL   = "https://geoportal.geoportal-th.de/gaialight-th/_apps/dladownload/download.php"
	DefaultOutputName      = "merged"
	DefaultOutputSRS       = "EPSG:25832"
	DefaultDEMFormat       = DEMFormatDGM
	DefaultWorkers         = 8
	DefaultBatchSize       = 200
)

// DefaultSidecarExtensions lists files delivered with the tiles which are not rasters.
var DefaultSidecarExtensions = []string{".tfw", ".j2w", ".jgw", ".meta", ".xml", ".txt", ".pdf", ".html", ".prj"}

/*
loadConfig reads, defaults and verifies the program configuration.
*/
func loadConfig(filename string) (ProgConfig, error) {
	var progConfig ProgConfig

	source, err := os.ReadFile(filename)
	if err != nil {
		return progConfig, fmt.Errorf("error [%w] at os.ReadFile()", err)
	}
	err = yaml.Unmarshal(source, &progConfig)
	if err != nil {
		return progConfig, fmt.Errorf("error [%w] at yaml.Unmarshal()", err)
	}

	applyDefaults(&progConfig)

	err = verifyConfig(progConfig)
	if err != nil {
		return progConfig, err
	}
	return progConfig, nil
}

/*
applyDefaults fills unset settings. Directories are derived from the root directory:
<root>/data, <root>/data/dem and <root>/data/op.
*/
func applyDefaults(progConfig *ProgConfig) {
	if progConfig.DataDirectory == "" {
		progConfig.DataDirectory = filepath.Join(progConfig.Root, "data")
	}
	if progConfig.DEMDirectory == "" {
		progConfig.DEMDirectory = filepath.Join(progConfig.DataDirectory, "dem")
	}
	if progConfig.OPDirectory == "" {
		progConfig.OPDirectory = filepath.Join(progConfig.DataDirectory, "op")
	}
	if progConfig.DataChoice == "" {
		progConfig.DataChoice = DataChoiceDEM
	}
	progConfig.DataChoice = strings.ToLower(progConfig.DataChoice)
	if progConfig.DEMFormat == "" {
		progConfig.DEMFormat = DefaultDEMFormat
	}
	progConfig.DEMFormat = strings.ToLower(progConfig.DEMFormat)
	if progConfig.OutputName == "" {
		progConfig.OutputName = DefaultOutputName
	}
	if progConfig.OutputSRS == "" {
		progConfig.OutputSRS = DefaultOutputSRS
	}
	if progConfig.SidecarExtensions == nil {
		progConfig.SidecarExtensions = DefaultSidecarExtensions
	}
	if progConfig.Portal.OverviewBaseURL == "" {
		progConfig.Portal.OverviewBaseURL = DefaultOverviewBaseURL
	}
	if progConfig.Portal.DEMBaseURL == "" {
		progConfig.Portal.DEMBaseURL = DefaultDEMBaseURL
	}
	if progConfig.Portal.OPDownloadURL == "" {
		progConfig.Portal.OPDownloadURL = DefaultOPDownloadURL
	}
	if progConfig.Discovery.Workers <= 0 {
		progConfig.Discovery.Workers = DefaultWorkers
	}
	if progConfig.Discovery.BatchSize <= 0 {
		progConfig.Discovery.BatchSize = DefaultBatchSize
	}
}

/*
verifyConfig verifies configuration data. Capabilities (output srs, dem format) are verified
separately before any download starts (see verifyCapabilities).
*/
func verifyConfig(progConfig ProgConfig) error {
	switch progConfig.DataChoice {
	case DataChoiceDEM, DataChoiceOP, DataChoiceBoth:
	default:
		return fmt.Errorf("%w: data choice [%s], expected dem, op or both", ErrUnsupportedConfiguration, progConfig.DataChoice)
	}

	for _, keep := range progConfig.KeepFiles {
		if _, err := parseKeepCategory(keep); err != nil {
			return err
		}
	}

	if progConfig.Discovery.EndID < progConfig.Discovery.StartID {
		return errors.New("discovery: EndID must not be smaller than StartID")
	}
	if progConfig.Discovery.RequestsPerSecond < 0 {
		return errors.New("discovery: RequestsPerSecond must not be negative")
	}

	return nil
}
