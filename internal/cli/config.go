package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/alnah/go-speechscreen/internal/config"
)

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage persistent configuration settings.

Configuration is stored in $XDG_CONFIG_HOME/speechscreen/config.toml
(~/.config/speechscreen/config.toml by default). Keys are written
section.key, e.g. pipeline.threshold.

Every key can be overridden with an environment variable:
SPEECHSCREEN_<SECTION>_<KEY>, e.g. SPEECHSCREEN_PIPELINE_THRESHOLD.`,
		Example: `  speechscreen config show
  speechscreen config get pipeline.threshold
  speechscreen config set asr.provider http
  speechscreen config set asr.url http://localhost:9000`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/speechscreen/config.toml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(env, configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(env, configPath, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(env, configPath, args[0], args[1])
		},
	})

	return cmd
}

// runConfigShow prints the configuration after environment overrides.
func runConfigShow(env *Env, path string) error {
	cfg, err := env.ConfigLoader.Load(path, env.Getenv)
	if err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprintf(env.Stdout, "# %s\n%s", cfg.Paths.ConfigPath, out)
	return nil
}

func runConfigGet(env *Env, path, key string) error {
	cfg, err := env.ConfigLoader.Load(path, env.Getenv)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(cfg.Keys(), ", "))
	}
	fmt.Fprintln(env.Stdout, value)
	return nil
}

// runConfigSet edits the file only: environment overrides are not persisted.
func runConfigSet(env *Env, path, key, value string) error {
	cfg, err := env.ConfigLoader.Load(path, noEnv)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(cfg.Keys(), ", "))
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		return err
	}

	stored, _ := cfg.Get(key)
	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, stored)
	if v := env.Getenv(config.EnvName(key)); v != "" {
		fmt.Fprintf(env.Stderr, "Note: %s=%s overrides this value\n", config.EnvName(key), v)
	}
	return nil
}

func noEnv(string) string { return "" }
