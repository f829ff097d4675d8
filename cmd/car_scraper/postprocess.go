package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/postprocess"
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess",
	Short: "Clean a raw crawl dataset for database import",
	Long: "Copies the crawl output into a processed file, dropping the unreliable " +
		"columns, rows that carry nothing beyond their identity, and rows without " +
		"a plausible official price.",
	RunE: runPostprocess,
}

var (
	postprocessIn  string
	postprocessOut string
)

func init() {
	postprocessCmd.Flags().StringVar(&postprocessIn, "in", "scrapped_data.csv", "raw dataset path")
	postprocessCmd.Flags().StringVarP(&postprocessOut, "out", "o", "processed_data.csv", "processed dataset path")

	rootCmd.AddCommand(postprocessCmd)
}

func runPostprocess(cmd *cobra.Command, _ []string) error {
	report, err := postprocess.Run(postprocessIn, postprocessOut)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	fmt.Fprintf(cmd.OutOrStdout(), "processed dataset saved to %s\n", postprocessOut)
	return nil
}
