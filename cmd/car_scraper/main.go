// Package main provides the car_scraper CLI: crawl the catalog, clean the
// dataset, build the cars database.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "car_scraper",
	Short: "Egyptian new-car catalog scraper",
	Long: "car_scraper crawls the eg.hatla2ee.com new-car catalog brand by brand, " +
		"extracts one typed row per trim using the feature mapping table, and " +
		"prepares the dataset and SQLite database the car advisor consumes.",
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	// Load .env if present; flags still win over the environment.
	_ = godotenv.Load()

	cobra.OnInitialize(func() {
		observability.SetupConsole(verbose)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envDefault returns the environment value for key, or fallback when unset.
func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
