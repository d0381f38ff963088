package cli

import (
	"errors"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/spf13/cobra"
)

// ErrRejected is returned by commands whose check failed, so main can exit non-zero.
var ErrRejected = errors.New("rejected")

// Execute runs climatectl.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds a fresh command tree; flags are not shared between trees.
func NewRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "climatectl",
		Short: "Closed-loop grow room climate controller",
		Long: `climatectl keeps a grow room inside the VPD, temperature and humidity ranges of its
current growth stage.

  climatectl run                       start the control loop, HTTP API and gRPC guardrail
  climatectl analyze --temp 84 --rh 45 one-shot dry run of analyze and plan
  climatectl validate --entity ...     check a proposed change against the hard limits
  climatectl propose --addr ...        send a proposal to a running guardrail`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.LoadDotEnv()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults built in; env CONFIG_PATH)")

	loadFile := func() (*config.File, error) {
		return config.Load(resolveConfigPath(configPath))
	}

	root.AddCommand(
		newRunCmd(func() string { return resolveConfigPath(configPath) }),
		newAnalyzeCmd(loadFile),
		newValidateCmd(loadFile),
		newProposeCmd(),
	)
	return root
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return config.Env("CONFIG_PATH", "")
}
