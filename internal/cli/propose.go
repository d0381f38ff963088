package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/services/guardrail"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

func newProposeCmd() *cobra.Command {
	var (
		addr, entity, reason string
		current, next        float64
		timeout              time.Duration
	)
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Send a setpoint change to a running guardrail over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			in, err := structpb.NewStruct(map[string]any{
				"entity":        entity,
				"current_value": current,
				"new_value":     next,
				"reason":        reason,
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out, err := guardrail.NewGuardrailClient(conn).Propose(ctx, in)
			if err != nil {
				return err
			}
			res := out.AsMap()
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if accepted, _ := res["accepted"].(bool); !accepted {
				return fmt.Errorf("%w: %v", ErrRejected, res["reason"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "guardrail gRPC address")
	cmd.Flags().StringVar(&entity, "entity", "", "entity id")
	cmd.Flags().Float64Var(&current, "current", 0, "current value")
	cmd.Flags().Float64Var(&next, "new", 0, "proposed value")
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "call timeout")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
