package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"winequality/predictor"
	"winequality/wine"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the quality of one wine from flags",
	RunE:  runPredict,
}

func init() {
	for _, f := range wine.Features() {
		predictCmd.Flags().Float64(flagName(f), f.Default, fmt.Sprintf("%s [%g, %g]", f.Title(), f.Min, f.Max))
	}
	predictCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func flagName(f wine.FeatureSpec) string {
	return strings.ReplaceAll(f.Key, "_", "-")
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	specs := wine.Features()
	values := make([]float64, len(specs))
	for i, f := range specs {
		values[i], _ = cmd.Flags().GetFloat64(flagName(f))
	}
	sample, err := wine.SampleFromVector(values)
	if err != nil {
		return err
	}
	check := sample.Validate
	if cfg.Predictor.AllowOutOfRange {
		check = sample.CheckFinite
	}
	if err := check(); err != nil {
		return err
	}

	pred, _, err := predictor.Load(cfg.Artifacts.ScalerPath, cfg.Artifacts.ModelPath)
	if err != nil {
		return err
	}
	result, err := pred.Predict(sample)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "Predicted quality: %s\n", result.Label.Title())
	for _, c := range result.Confidences {
		fmt.Fprintf(out, "  %-8s %5.1f%%\n", c.Label.Title(), c.Percent)
	}
	fmt.Fprintln(out, "Advice:")
	for _, a := range result.Advice {
		fmt.Fprintf(out, "  - %s\n", a)
	}
	return nil
}
