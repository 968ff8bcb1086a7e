package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scholarpath/scout-cli/internal/model"
)

var (
	runProfilePath string
	runCity        string
	runState       string
	runGradYear    int
	runGPA         float64
	runMajor       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a discovery pipeline for one student profile",
	Long:  "Builds search queries from the profile, discovers candidate scholarship pages, extracts structured records, and queues them for review. Prints run statistics as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		profile, err := loadProfile()
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.Pipeline.Run(ctx, profile)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("discovery run complete",
			zap.Int("queried", stats.Queried),
			zap.Int("queued", stats.Queued),
			zap.Int("skipped_deadline", stats.SkippedDeadline),
			zap.Int("errors", len(stats.Errors)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// loadProfile reads the profile from --profile YAML when given,
// otherwise assembles one from the individual flags.
func loadProfile() (model.Profile, error) {
	if runProfilePath != "" {
		data, err := os.ReadFile(runProfilePath)
		if err != nil {
			return model.Profile{}, eris.Wrapf(err, "read profile %s", runProfilePath)
		}
		var p model.Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return model.Profile{}, eris.Wrapf(err, "parse profile %s", runProfilePath)
		}
		return p, nil
	}

	p := model.Profile{
		City:           runCity,
		State:          runState,
		GraduationYear: runGradYear,
		IntendedMajor:  runMajor,
	}
	if runGPA > 0 {
		p.GPA = &runGPA
	}
	return p, nil
}

func init() {
	runCmd.Flags().StringVar(&runProfilePath, "profile", "", "path to a student profile YAML file")
	runCmd.Flags().StringVar(&runCity, "city", "", "student's city")
	runCmd.Flags().StringVar(&runState, "state", "", "student's state")
	runCmd.Flags().IntVar(&runGradYear, "grad-year", 0, "high school graduation year")
	runCmd.Flags().Float64Var(&runGPA, "gpa", 0, "GPA on a 4.0 scale")
	runCmd.Flags().StringVar(&runMajor, "major", "", "intended major")
	rootCmd.AddCommand(runCmd)
}
