package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
)

// commonFlags are shared by every command
type commonFlags struct {
	configPath string
	dataDir    string
	report     string
	reportFile string
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file (YAML or JSON)")
	fs.StringVar(&c.dataDir, "data-dir", "", "Root of the local data tree (overrides fetch.data_dir)")
	fs.StringVar(&c.report, "report", "text", "Report format: text, json or yaml")
	fs.StringVar(&c.reportFile, "report-file", "", "Also write the report to this file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// apply loads configuration and layers the flag overrides on top
func (c *commonFlags) apply() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.dataDir != "" {
		cfg.Fetch.DataDir = c.dataDir
	}
	if c.logLevel != "" {
		cfg.Logger.Level = c.logLevel
	}
	return cfg, nil
}

const (
	defaultTypes = "yellow"
	defaultYears = "2023-2025"
)

// selectionFlags describe what to resolve
type selectionFlags struct {
	types   string
	years   string
	months  string
	zones   string
	workers int
}

func (s *selectionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.types, "types", defaultTypes, "Trip kinds: comma list of yellow, green, fhv, fhvhv, or all")
	fs.StringVar(&s.years, "years", defaultYears, "Years: comma list or ranges, e.g. 2019-2021,2023")
	fs.StringVar(&s.months, "months", "", "Months 1-12: comma list or ranges (default all)")
	fs.StringVar(&s.zones, "zones", "essential", "Zone reference data: none, essential or all")
	fs.IntVar(&s.workers, "workers", 0, "Concurrent transfers (overrides fetch.workers)")
}

func (s *selectionFlags) selection() (catalog.Selection, error) {
	var sel catalog.Selection

	kinds, err := catalog.ParseKinds(splitList(s.types))
	if err != nil {
		return sel, err
	}
	years, err := parseInts(s.years)
	if err != nil {
		return sel, fmt.Errorf("-years: %w", err)
	}
	months, err := parseInts(s.months)
	if err != nil {
		return sel, fmt.Errorf("-months: %w", err)
	}
	zones, err := catalog.ParseZoneLevel(s.zones)
	if err != nil {
		return sel, err
	}

	sel.Kinds = kinds
	sel.Years = years
	sel.Months = months
	sel.Zones = zones
	return sel, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseInts accepts "2019,2021" and "2019-2021" forms
func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		if !isRange {
			out = append(out, start)
			continue
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", part)
		}
		if end < start {
			return nil, fmt.Errorf("range %q runs backwards", part)
		}
		for v := start; v <= end; v++ {
			out = append(out, v)
		}
	}
	return out, nil
}
