package cli

import (
	"encoding/json"
	"fmt"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/aggregator"
	climate "github.com/LeonardoBeccarini/climate_controller/internal/services/climate-controller"
	"github.com/spf13/cobra"
)

type analyzeOutput struct {
	Room     string                  `json:"room"`
	Stage    entities.Stage          `json:"stage"`
	Snapshot entities.SensorSnapshot `json:"snapshot"`
	Problems []entities.Problem      `json:"problems"`
	Plan     climate.Plan            `json:"plan"`
}

func newAnalyzeCmd(load func() (*config.File, error)) *cobra.Command {
	var (
		stage                   string
		temp, rh, vpd           float64
		fanPower, humidifierPow float64
		heaterSetpoint          float64
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a reading and print the plan without dispatching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := load()
			if err != nil {
				return err
			}
			pol := f.ClimatePolicy()
			if stage != "" {
				pol.Stage = entities.Stage(stage)
			}
			target, err := pol.Current()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			var snap entities.SensorSnapshot
			if flags.Changed("temp") {
				snap.Temperature = entities.Known(temp)
			}
			if flags.Changed("rh") {
				snap.Humidity = entities.Known(rh)
			}
			switch {
			case flags.Changed("vpd"):
				snap.VPD = entities.Known(vpd)
			case snap.Temperature != nil && snap.Humidity != nil:
				snap.VPD = entities.Known(aggregator.VPD(temp, rh))
			}

			states := entities.ActuatorStates{}
			if flags.Changed("fan-power") {
				states[entities.DeviceExhaustFan] = entities.ActuatorState{
					Device: entities.DeviceExhaustFan, Mode: onOff(fanPower), CurrentPower: fanPower,
				}
			}
			if flags.Changed("humidifier-power") {
				states[entities.DeviceHumidifier] = entities.ActuatorState{
					Device: entities.DeviceHumidifier, Mode: onOff(humidifierPow), CurrentPower: humidifierPow,
				}
			}
			if flags.Changed("heater-setpoint") {
				states[entities.DeviceHeater] = entities.ActuatorState{
					Device: entities.DeviceHeater, Mode: "heat", Setpoint: entities.Known(heaterSetpoint),
				}
			}

			problems := climate.Analyze(snap, target)
			plan := climate.BuildPlan(problems, snap, target, states, climate.OwnershipMap(f.Ownership))

			return printJSON(cmd, analyzeOutput{
				Room:     pol.Room,
				Stage:    pol.Stage,
				Snapshot: snap,
				Problems: problems,
				Plan:     plan,
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "growth stage (defaults to the configured one)")
	cmd.Flags().Float64Var(&temp, "temp", 0, "temperature °F")
	cmd.Flags().Float64Var(&rh, "rh", 0, "relative humidity %")
	cmd.Flags().Float64Var(&vpd, "vpd", 0, "VPD kPa (derived from temp and rh when omitted)")
	cmd.Flags().Float64Var(&fanPower, "fan-power", 0, "current exhaust fan power 0..10")
	cmd.Flags().Float64Var(&humidifierPow, "humidifier-power", 0, "current humidifier intensity 0..10")
	cmd.Flags().Float64Var(&heaterSetpoint, "heater-setpoint", 0, "current heater setpoint °F")
	return cmd
}

func onOff(power float64) string {
	if power > 0 {
		return entities.ModeOn
	}
	return entities.ModeOff
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
