package cli

import (
	"fmt"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/guardrail"
	"github.com/spf13/cobra"
)

func newValidateCmd(load func() (*config.File, error)) *cobra.Command {
	var req entities.AutonomousActionRequest
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a proposed change against the hard limits without applying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := load()
			if err != nil {
				return err
			}
			d := guardrail.Validate(req, f.Limits())
			if err := printJSON(cmd, d); err != nil {
				return err
			}
			if !d.Accepted {
				return fmt.Errorf("%w: %s", ErrRejected, d.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Entity, "entity", "", "entity id, e.g. number.target_vpd")
	cmd.Flags().Float64Var(&req.CurrentValue, "current", 0, "current value")
	cmd.Flags().Float64Var(&req.NewValue, "new", 0, "proposed value")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "free-text reason")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}
