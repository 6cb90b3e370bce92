package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"winequality/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent predictions or training runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		training, _ := cmd.Flags().GetBool("training")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.Path == "" {
			return errors.New("database.path is not configured")
		}
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if training {
			logs, err := store.LoadTrainingLog()
			if err != nil {
				return fmt.Errorf("query training log: %w", err)
			}
			if len(logs) == 0 {
				fmt.Fprintln(out, "No training runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-19s  %-14s  %-8s  %-8s  %-9s  %-6s  %s\n",
				"Trained", "Model", "Scheme", "Accuracy", "Precision", "Recall", "Rows")
			fmt.Fprintln(out, strings.Repeat("─", 80))
			for _, l := range logs {
				fmt.Fprintf(out, "%-19s  %-14s  %-8s  %-8.3f  %-9.3f  %-6.3f  %d\n",
					l.TrainedAt.Local().Format("2006-01-02 15:04:05"),
					l.ModelName, l.Scheme, l.Accuracy, l.Precision, l.Recall, l.DataPoints)
			}
			return nil
		}

		records, err := store.RecentPredictions(limit)
		if err != nil {
			return fmt.Errorf("query predictions: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No predictions found.")
			return nil
		}
		fmt.Fprintf(out, "%-36s  %-19s  %-8s  %-6s  %-7s  %-9s  %s\n",
			"ID", "Created", "Label", "Conf%", "Alcohol", "Sulphates", "Volatile")
		fmt.Fprintln(out, strings.Repeat("─", 100))
		for _, r := range records {
			fmt.Fprintf(out, "%-36s  %-19s  %-8s  %-6.1f  %-7.2f  %-9.2f  %.2f\n",
				r.ID,
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Label,
				r.Confidence,
				r.Sample.Alcohol,
				r.Sample.Sulphates,
				r.Sample.VolatileAcidity,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", db.DefaultHistoryLimit, "Number of predictions to show")
	historyCmd.Flags().Bool("training", false, "Show training runs instead of predictions")
}
