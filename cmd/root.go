// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/observability"
)

// flagKeys maps command flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"concurrency": "engine.max_sessions",
	"solver":      "solver.strategy",
	"headless":    "browser.headless",
	"url":         "target.url",
}

// cliState is shared by the root command and its children for one execution.
type cliState struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree. Every call returns independent
// state, so tests can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	st := &cliState{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "slotrunner",
		Short:         "Registers roster profiles for every open slot of a web form.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := st.load(cmd.Flags()); err != nil {
				// Logging still needs to work so the failure can be reported.
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return err
			}
			observability.InitializeLogger(st.cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version), zap.String("config_file", st.v.ConfigFileUsed()))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&st.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(st),
		newRosterCmd(st),
		newCheckSolverCmd(st),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with the signal-aware context from main.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command interrupted.", zap.Error(err))
	} else {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
	}
	observability.Sync()
	return err
}

// load reads the config file, environment and command flags, in increasing precedence.
func (st *cliState) load(flags *pflag.FlagSet) error {
	v := st.v
	config.SetDefaults(v)
	config.BindEnv(v)

	if st.cfgFile != "" {
		v.SetConfigFile(st.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	st.cfg = cfg
	return nil
}
