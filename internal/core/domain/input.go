package domain

import (
	"errors"
	"fmt"
	"strings"
)

// InputMonitorAddress names the input holding the application monitor address.
const InputMonitorAddress = "dmon_address"

// Input is a global key/value passed to deployments that declare it.
type Input struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Validate checks that key and value are present.
func (i Input) Validate() error {
	var errs []error
	if strings.TrimSpace(i.Key) == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if strings.TrimSpace(i.Value) == "" {
		errs = append(errs, errors.New("value is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// SelectInputs returns the values of every declared key that has a global input.
func SelectInputs(declared []string, inputs []Input) map[string]string {
	byKey := make(map[string]string, len(inputs))
	for _, in := range inputs {
		byKey[in.Key] = in.Value
	}
	selected := make(map[string]string)
	for _, key := range declared {
		if v, ok := byKey[key]; ok {
			selected[key] = v
		}
	}
	return selected
}
