// Package entities internal/model/entities/climate-policy.go
package entities

import (
	"errors"
	"fmt"
)

var ErrUnknownStage = errors.New("unknown stage")

// ClimatePolicy is the per-room stage schedule used by the controller.
type ClimatePolicy struct {
	Room   string                  `json:"room" yaml:"room"`
	Crop   string                  `json:"crop" yaml:"crop"`
	Stage  Stage                   `json:"stage" yaml:"stage"` // current stage
	Stages map[Stage]TargetProfile `json:"stages" yaml:"stages"`
}

// Current returns the target profile of the active stage.
func (p ClimatePolicy) Current() (TargetProfile, error) {
	t, ok := p.Stages[p.Stage]
	if !ok {
		return TargetProfile{}, fmt.Errorf("%w: %q", ErrUnknownStage, p.Stage)
	}
	return t, nil
}

func (p ClimatePolicy) Validate() error {
	if _, err := p.Current(); err != nil {
		return err
	}
	for s, t := range p.Stages {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("stage %s: %w", s, err)
		}
	}
	return nil
}
