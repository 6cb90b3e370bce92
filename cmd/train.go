package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"winequality/config"
	"winequality/db"
	"winequality/ml"
	"winequality/trainer"
	"winequality/wine"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the scaler and classifier and write both artifacts",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().String("dataset", "", "Training CSV (overrides training.dataset)")
	trainCmd.Flags().String("scheme", "", "Label scheme: binary or ternary (overrides training.scheme)")
	trainCmd.Flags().String("model", "", fmt.Sprintf("Model type: %s (overrides training.model_type)", strings.Join(ml.ModelTypes(), ", ")))
	trainCmd.Flags().Int64("seed", 0, "Split seed (overrides training.seed)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyTrainFlags(cmd, cfg); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	t := trainer.New(trainer.Config{
		Dataset:    cfg.Training.Dataset,
		ScalerPath: cfg.Artifacts.ScalerPath,
		ModelPath:  cfg.Artifacts.ModelPath,
		Scheme:     cfg.Scheme(),
		ModelType:  cfg.Training.ModelType,
		TestRatio:  cfg.Training.TestRatio,
		Seed:       cfg.Training.Seed,
		Classifier: cfg.ClassifierOptions(),
	}, logger.Logger)

	report, err := t.Run()
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)

	if cfg.Database.Path == "" {
		return nil
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	err = store.SaveTrainingLog(db.TrainingLog{
		ModelName:  report.ModelType,
		Scheme:     report.Scheme,
		Accuracy:   report.Evaluation.Accuracy,
		Precision:  report.Evaluation.Precision,
		Recall:     report.Evaluation.Recall,
		DataPoints: report.Rows,
		TrainedAt:  report.TrainedAt,
	})
	if err != nil {
		// The artifacts are already on disk; the log row is informational.
		logger.Warn("save training log", zap.Error(err))
	}
	return nil
}

func applyTrainFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if v, _ := flags.GetString("dataset"); v != "" {
		cfg.Training.Dataset = v
	}
	if v, _ := flags.GetString("scheme"); v != "" {
		cfg.Training.Scheme = v
	}
	if v, _ := flags.GetString("model"); v != "" {
		cfg.Training.ModelType = v
	}
	if flags.Changed("seed") {
		cfg.Training.Seed, _ = flags.GetInt64("seed")
	}
	return cfg.Validate()
}

func printReport(w io.Writer, r *trainer.Report) {
	fmt.Fprintf(w, "Model:     %s (%s labels)\n", r.ModelType, r.Scheme)
	fmt.Fprintf(w, "Rows:      %d (train %d, test %d)\n", r.Rows, r.TrainRows, r.TestRows)
	scheme, err := wine.ParseScheme(r.Scheme)
	if err == nil {
		parts := make([]string, 0, scheme.Size())
		for _, l := range scheme.Labels() {
			parts = append(parts, fmt.Sprintf("%s=%d", l, r.LabelCounts[l]))
		}
		fmt.Fprintf(w, "Labels:    %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(w, "Accuracy:  %.3f\n", r.Evaluation.Accuracy)
	fmt.Fprintf(w, "Precision: %.3f (macro)\n", r.Evaluation.Precision)
	fmt.Fprintf(w, "Recall:    %.3f (macro)\n", r.Evaluation.Recall)
	fmt.Fprintf(w, "Scaler:    %s\n", r.ScalerPath)
	fmt.Fprintf(w, "Artifact:  %s\n", r.ModelPath)
	fmt.Fprintf(w, "Took:      %s\n", r.Duration.Round(time.Millisecond))
}
