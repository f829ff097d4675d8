package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/carsdb"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
)

var createDBCmd = &cobra.Command{
	Use:   "create-db",
	Short: "Build the cars SQLite database from the processed dataset",
	Long: "Derives the cars table schema from the feature mapping table, creates the " +
		"lookup indexes and imports the processed dataset.",
	RunE: runCreateDB,
}

var (
	createDBPath     string
	createDBCSV      string
	createDBMappings string
)

func init() {
	createDBCmd.Flags().StringVar(&createDBPath, "db", "cars.db", "database file path")
	createDBCmd.Flags().StringVar(&createDBCSV, "in", "processed_data.csv", "processed dataset path")
	createDBCmd.Flags().StringVar(&createDBMappings, "mappings", "features_mapping.csv", "feature mapping table path")

	rootCmd.AddCommand(createDBCmd)
}

func runCreateDB(cmd *cobra.Command, _ []string) error {
	dict, err := dictionary.Load(createDBMappings)
	if err != nil {
		return err
	}

	store, err := carsdb.Open(createDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.CreateSchema(ctx, dict); err != nil {
		return err
	}
	imported, err := store.ImportCSV(ctx, createDBCSV, dict)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "database %s created, %d rows imported\n", createDBPath, imported)
	return nil
}
