package rules

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load returns the rule table, applying overrides from the "rules" section
// of the configuration when present, and validates the result.
func Load(v *viper.Viper) (Table, error) {
	table := Defaults()

	if v != nil && v.IsSet("rules") {
		if err := v.UnmarshalKey("rules", &table); err != nil {
			return Table{}, fmt.Errorf("failed to parse rules configuration: %w", err)
		}
	}

	if err := table.Validate(); err != nil {
		return Table{}, err
	}

	return table, nil
}
