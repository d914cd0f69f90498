package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

func queryListAlertRules(ctx context.Context, db executor, enabledOnly bool) ([]*model.AlertRule, error) {
	query := `
		SELECT id, name, metric, condition, threshold, window_minutes, severity, enabled, channels, created_at, updated_at
		FROM alert_rules`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var out []*model.AlertRule
	for rows.Next() {
		var (
			r         model.AlertRule
			condition string
			severity  string
			channels  []byte
		)
		err := rows.Scan(&r.ID, &r.Name, &r.Metric, &condition, &r.Threshold, &r.WindowMinutes,
			&severity, &r.Enabled, &channels, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		r.Condition = model.ConditionOp(condition)
		r.Severity = model.Severity(severity)
		if len(channels) > 0 {
			if err := json.Unmarshal(channels, &r.Channels); err != nil {
				return nil, fmt.Errorf("decode rule channels: %w", err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func queryUpsertAlertRule(ctx context.Context, db executor, rule *model.AlertRule) error {
	channels, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("encode rule channels: %w", err)
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO alert_rules (name, metric, condition, threshold, window_minutes, severity, enabled, channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			metric = EXCLUDED.metric,
			condition = EXCLUDED.condition,
			threshold = EXCLUDED.threshold,
			window_minutes = EXCLUDED.window_minutes,
			severity = EXCLUDED.severity,
			enabled = EXCLUDED.enabled,
			channels = EXCLUDED.channels,
			updated_at = NOW()
		RETURNING id`,
		rule.Name, rule.Metric, string(rule.Condition), rule.Threshold,
		rule.WindowMinutes, string(rule.Severity), rule.Enabled, channels).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("upsert alert rule: %w", err)
	}
	return nil
}

func queryCreateAlertInstance(ctx context.Context, db executor, inst *model.AlertInstance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO alert_history (id, rule_id, rule_name, metric, value, threshold, severity, status, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inst.ID, inst.RuleID, inst.RuleName, inst.Metric, inst.Value, inst.Threshold,
		string(inst.Severity), string(inst.Status), nullString(inst.Message), inst.TriggeredAt)
	if err != nil {
		return fmt.Errorf("create alert instance: %w", err)
	}
	return nil
}

func queryUpdateAlertStatus(ctx context.Context, db executor, id string, status model.AlertStatus, at time.Time) error {
	var query string
	switch status {
	case model.AlertAcknowledged:
		query = `UPDATE alert_history SET status = $2, acknowledged_at = $3 WHERE id = $1`
	case model.AlertResolved:
		query = `UPDATE alert_history SET status = $2, resolved_at = $3 WHERE id = $1`
	default:
		query = `UPDATE alert_history SET status = $2, triggered_at = $3 WHERE id = $1`
	}
	res, err := db.ExecContext(ctx, query, id, string(status), at)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}

func queryListAlertInstances(ctx context.Context, db executor, status model.AlertStatus, limit int) ([]*model.AlertInstance, error) {
	query := `
		SELECT id, rule_id, rule_name, metric, value, threshold, severity, status, message, triggered_at, acknowledged_at, resolved_at
		FROM alert_history`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY triggered_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alert instances: %w", err)
	}
	defer rows.Close()

	var out []*model.AlertInstance
	for rows.Next() {
		var (
			a            model.AlertInstance
			severity     string
			instStatus   string
			message      sql.NullString
			acked, rsvd  sql.NullTime
		)
		err := rows.Scan(&a.ID, &a.RuleID, &a.RuleName, &a.Metric, &a.Value, &a.Threshold,
			&severity, &instStatus, &message, &a.TriggeredAt, &acked, &rsvd)
		if err != nil {
			return nil, fmt.Errorf("scan alert instance: %w", err)
		}
		a.Severity = model.Severity(severity)
		a.Status = model.AlertStatus(instStatus)
		a.Message = message.String
		a.AcknowledgedAt = timePtr(acked)
		a.ResolvedAt = timePtr(rsvd)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func queryAlertStatistics(ctx context.Context, db executor, since time.Time) (*model.AlertStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, severity, COUNT(*) FROM alert_history
		WHERE triggered_at >= $1 GROUP BY status, severity`,
		since)
	if err != nil {
		return nil, fmt.Errorf("alert statistics: %w", err)
	}
	defer rows.Close()

	stats := &model.AlertStats{
		ByStatus:   make(map[string]int),
		BySeverity: make(map[string]int),
	}
	for rows.Next() {
		var (
			status, severity string
			count            int
		)
		if err := rows.Scan(&status, &severity, &count); err != nil {
			return nil, fmt.Errorf("scan alert statistics: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}
