package alert

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/lumenlearn/pulse/internal/model"
	"github.com/lumenlearn/pulse/internal/store"
)

// ruleFile is the on-disk shape of a rule seed file:
//
//	[[rule]]
//	name = "high-error-rate"
//	metric = "error_rate"
//	condition = "gt"
//	threshold = 5.0
//	window_minutes = 5
//	severity = "high"
//	channels = ["email", "slack"]
type ruleFile struct {
	Rule []ruleDef `toml:"rule"`
}

type ruleDef struct {
	Name          string   `toml:"name"`
	Metric        string   `toml:"metric"`
	Condition     string   `toml:"condition"`
	Threshold     float64  `toml:"threshold"`
	WindowMinutes int      `toml:"window_minutes"`
	Severity      string   `toml:"severity"`
	Disabled      bool     `toml:"disabled"`
	Channels      []string `toml:"channels"`
}

// SeedRules upserts every rule in a TOML file, keyed by name. Existing
// rules with the same name are overwritten; rules absent from the file
// are left untouched.
func SeedRules(ctx context.Context, s store.AlertStore, path string) (int, error) {
	var file ruleFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return 0, fmt.Errorf("decoding rule file %s: %w", path, err)
	}

	for i, def := range file.Rule {
		rule, err := def.toModel()
		if err != nil {
			return 0, fmt.Errorf("rule %d (%s): %w", i, def.Name, err)
		}
		if err := s.UpsertAlertRule(ctx, rule); err != nil {
			return 0, fmt.Errorf("upserting rule %s: %w", def.Name, err)
		}
	}
	return len(file.Rule), nil
}

func (d ruleDef) toModel() (*model.AlertRule, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if d.Metric == "" {
		return nil, fmt.Errorf("missing metric")
	}
	cond := model.ConditionOp(d.Condition)
	if !cond.Valid() {
		return nil, fmt.Errorf("invalid condition %q", d.Condition)
	}
	severity := model.Severity(d.Severity)
	if severity == "" {
		severity = model.SeverityMedium
	}
	windowMinutes := d.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	return &model.AlertRule{
		Name:          d.Name,
		Metric:        d.Metric,
		Condition:     cond,
		Threshold:     d.Threshold,
		WindowMinutes: windowMinutes,
		Severity:      severity,
		Enabled:       !d.Disabled,
		Channels:      d.Channels,
	}, nil
}
