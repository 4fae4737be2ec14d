package domain

import (
	"fmt"
	"math"
)

// ValidateConfigValue checks an operator change to a runtime config key
func ValidateConfigValue(key string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be finite", key)
	}
	switch key {
	case ConfigKillSwitch:
		if v != 0 && v != 1 {
			return fmt.Errorf("kill_switch must be 0 (halted) or 1 (enabled)")
		}
	case ConfigTargetDuration:
		if v < 0 {
			return fmt.Errorf("target_duration cannot be negative")
		}
	default:
		return fmt.Errorf("config key %s cannot be changed", key)
	}
	return nil
}
