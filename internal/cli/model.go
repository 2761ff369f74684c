package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ModelCmd creates the model command with subcommands.
func ModelCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the model bundle",
	}
	cmd.AddCommand(modelInspectCmd(env))
	return cmd
}

type inspectOptions struct {
	configPath string
	modelDir   string
	jsonOut    bool
}

func modelInspectCmd(env *Env) *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate and describe a model bundle",
		Long: `Validate and describe a model bundle.

A bundle directory holds classifier.json, scaler.json and features.json from
one training run. Loading fails if their versions or feature columns differ.`,
		Example: `  speechscreen model inspect
  speechscreen model inspect --model-dir ./model --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelInspect(env, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/speechscreen/config.toml)")
	cmd.Flags().StringVar(&opts.modelDir, "model-dir", "", "Model bundle directory (default: paths.model_dir)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the summary as JSON")

	return cmd
}

func runModelInspect(env *Env, opts inspectOptions) error {
	cfg, err := env.ConfigLoader.Load(opts.configPath, env.Getenv)
	if err != nil {
		return err
	}
	m, err := loadModel(env, cfg, opts.modelDir)
	if err != nil {
		return err
	}
	sum := m.Summary()

	if opts.jsonOut {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintln(env.Stdout, sum)
	if len(sum.Significant) > 0 {
		fmt.Fprintf(env.Stdout, "Significant features: %s\n", strings.Join(sum.Significant, ", "))
	}
	return nil
}
