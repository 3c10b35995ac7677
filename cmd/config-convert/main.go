package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hydrometrie/watertracker/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil {
		if !*force {
			fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
			fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
			os.Exit(1)
		}
		if !*dryRun {
			if err := os.Remove(*sqliteFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing existing database: %v\n", err)
				os.Exit(1)
			}
		}
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	fmt.Printf("Loading YAML configuration...\n")
	yamlProvider := config.NewYAMLProvider(*yamlFile)
	configData, err := yamlProvider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	printConfigSummary(configData)

	if *dryRun {
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	sqliteProvider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating configuration schema: %v\n", err)
		os.Exit(1)
	}
	if err := sqliteProvider.SaveConfig(configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving configuration: %v\n", err)
		os.Exit(1)
	}

	// Round-trip to catch anything the schema could not hold
	if _, err := sqliteProvider.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying converted configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Conversion complete")
}

func printConfigSummary(cfg *config.ConfigData) {
	sources := 0
	if cfg.Sources.Hubeau != nil {
		sources++
	}
	if cfg.Sources.Copernicus != nil {
		sources++
	}
	if cfg.Sources.MeteoFrance != nil {
		sources++
	}
	if cfg.Sources.EMI != nil {
		sources++
	}
	fmt.Printf("  Loaded %d sources, %d controllers\n", sources, len(cfg.Controllers))
	fmt.Printf("  Cache directory: %s\n", cfg.Data.Directory)
}
