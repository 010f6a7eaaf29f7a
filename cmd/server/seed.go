package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/api"
)

var seedReset bool

var seedCmd = &cobra.Command{
	Use:   "seed <scenario>",
	Short: "Load a demo scenario into the database",
	Long:  "Loads demo data through the services. Scenarios: " + scenarioIDs(),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		if seedReset {
			if err := env.Store.Reset(cmd.Context()); err != nil {
				return err
			}
			zap.L().Warn("database reset", zap.String("path", cfg.Store.Path))
		}

		res, err := api.LoadScenario(cmd.Context(), env.Employers, env.Advances, args[0], "seed")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func scenarioIDs() string {
	var ids []string
	for _, s := range api.Scenarios() {
		ids = append(ids, s.ID)
	}
	return strings.Join(ids, ", ")
}

func init() {
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "delete all data first")
	rootCmd.AddCommand(seedCmd)
}
