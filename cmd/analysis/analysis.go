package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/banshee-data/slipbench/internal/analysis"
	"github.com/banshee-data/slipbench/internal/config"
	"github.com/banshee-data/slipbench/internal/db"
	"github.com/banshee-data/slipbench/internal/sessionlog"
)

var (
	file       = flag.String("file", "", "Telemetry CSV file to analyze")
	dir        = flag.String("dir", "data", "Directory to search for session files")
	latest     = flag.Bool("latest", false, "Analyze the most recently modified session file")
	output     = flag.String("output", "analysis", "Directory for the report JSON")
	dbFile     = flag.String("db", "", "Optional session registry to record the report in")
	tuningFile = flag.String("tuning", "", "Optional tuning JSON file")
)

func sessionFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// latestSessionFile returns the most recently modified .csv under dir.
func latestSessionFile(dir string) (string, error) {
	files, err := sessionFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no session files in %s", dir)
	}

	newest := ""
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", err
		}
		if newest == "" {
			newest = f
			continue
		}
		newestInfo, err := os.Stat(newest)
		if err != nil {
			return "", err
		}
		if info.ModTime().After(newestInfo.ModTime()) {
			newest = f
		}
	}
	return newest, nil
}

func pickFile() (string, error) {
	if *file != "" {
		return *file, nil
	}
	if *latest {
		return latestSessionFile(*dir)
	}

	// no selection: list what is available and ask for one
	files, err := sessionFiles(*dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no session files in %s", *dir)
	}
	fmt.Fprintf(os.Stderr, "Available session files in %s:\n", *dir)
	for _, f := range files {
		fmt.Fprintf(os.Stderr, "  %s\n", f)
	}
	return "", fmt.Errorf("pass -file <path> or -latest to select one")
}

func main() {
	flag.Parse()

	params := analysis.DefaultParams()
	if *tuningFile != "" {
		tuning, err := config.LoadTuning(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		params = analysis.ParamsFromTuning(tuning)
	}

	path, err := pickFile()
	if err != nil {
		log.Fatal(err)
	}

	ds, err := sessionlog.Load(path)
	if err != nil {
		log.Fatalf("failed to load %s: %v", path, err)
	}
	log.Printf("loaded %d samples (%d comments, %d skipped rows) from %s",
		len(ds.Samples), ds.CommentRows, ds.SkippedRows, path)

	report, err := analysis.BuildReport(ds, params)
	if err != nil {
		log.Fatalf("failed to build report: %v", err)
	}

	doc, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	reportPath := filepath.Join(*output, "analysis_report.json")
	if err := os.WriteFile(reportPath, doc, 0o644); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}

	fmt.Print(report.Summary())
	fmt.Printf("\nReport written to %s\n", reportPath)

	if *dbFile != "" {
		registry, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open registry: %v", err)
		}
		defer registry.Close()

		runID := ""
		if s, err := registry.SessionForFile(path); err == nil {
			runID = s.RunID
		}
		if err := registry.RecordAnalysisReport(runID, path, doc); err != nil {
			log.Fatalf("failed to record report: %v", err)
		}
		log.Printf("report recorded in %s", *dbFile)
	}
}
