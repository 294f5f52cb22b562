package policy

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads a policy file (yaml/toml/json, decided by extension), layering
// it over the documented defaults. Validation happens here so a bad file
// fails before any analysis starts.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}
