// pkg/plans/plans.go
package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier is a subscription plan tier. Tiers form a fixed upgrade ladder:
// free < pro < business < enterprise.
type Tier string

const (
	Free       Tier = "free"
	Pro        Tier = "pro"
	Business   Tier = "business"
	Enterprise Tier = "enterprise"
)

// Unlimited marks a limit that is not enforced.
const Unlimited = -1

// Limits are the quota bounds for one tier.
type Limits struct {
	Daily   int64 `yaml:"daily"`
	Monthly int64 `yaml:"monthly"`
	MaxApps int   `yaml:"max_apps"`
}

// Table maps tiers to their limits. Read-only after Load.
type Table map[Tier]Limits

var order = []Tier{Free, Pro, Business, Enterprise}

// Defaults returns the built-in plan table.
func Defaults() Table {
	return Table{
		Free:       {Daily: 200, Monthly: 3000, MaxApps: 3},
		Pro:        {Daily: 5000, Monthly: 100000, MaxApps: 10},
		Business:   {Daily: 50000, Monthly: 1000000, MaxApps: 50},
		Enterprise: {Daily: Unlimited, Monthly: Unlimited, MaxApps: Unlimited},
	}
}

// Load reads a plan table from a YAML file, falling back to Defaults when
// path is empty. Overrides merge field-wise over a tier's defaults, so a file
// may set only the bounds it cares about; tiers absent from the file keep
// their default limits.
func Load(path string) (Table, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan limits: %w", err)
	}
	var overrides map[Tier]yaml.Node
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("plan limits: %w", err)
	}
	for tier, node := range overrides {
		lim, ok := t[tier]
		if !ok {
			return nil, fmt.Errorf("plan limits: unknown tier %q", tier)
		}
		// decoding onto the default keeps fields the file omits
		if err := node.Decode(&lim); err != nil {
			return nil, fmt.Errorf("plan limits: tier %q: %w", tier, err)
		}
		t[tier] = lim
	}
	return t, nil
}

// Normalize maps unknown or empty tiers to the most restrictive plan.
func Normalize(t Tier) Tier {
	for _, known := range order {
		if t == known {
			return t
		}
	}
	return Free
}

// Next returns the recommended upgrade tier, or "" when already at the top.
func Next(t Tier) Tier {
	for i, known := range order {
		if t == known && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}

func (tb Table) For(t Tier) Limits { return tb[Normalize(t)] }
