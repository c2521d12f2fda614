package dab

import "fmt"

// InvalidParameterError reports a single out-of-range or non-finite
// input. It never corrupts state; the offending call simply fails.
type InvalidParameterError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Param, e.Value, e.Reason)
}

// ConfigError reports a configuration the system refuses to start with.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Section, e.Reason)
}

// InsufficientHistoryError is returned only for an empty history; a short
// but non-empty history degrades to a neutral record instead.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d samples, need %d", e.Have, e.Need)
}
