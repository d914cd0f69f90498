package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

func queryQueueSend(ctx context.Context, db executor, queue string, payload json.RawMessage) (int64, error) {
	var msgID int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO queue_messages (queue, payload) VALUES ($1, $2)
		RETURNING msg_id`,
		queue, []byte(payload)).Scan(&msgID)
	if err != nil {
		return 0, fmt.Errorf("queue send: %w", err)
	}
	return msgID, nil
}

// queryQueueRead leases up to limit visible messages, bumping their
// visibility timeout and delivery count in the same statement. SKIP
// LOCKED keeps concurrent readers from leasing the same rows.
func queryQueueRead(ctx context.Context, db executor, queue string, vt time.Duration, limit int) ([]*model.QueueMessage, error) {
	rows, err := db.QueryContext(ctx, `
		UPDATE queue_messages SET
			vt = NOW() + make_interval(secs => $2),
			read_ct = read_ct + 1
		WHERE msg_id IN (
			SELECT msg_id FROM queue_messages
			WHERE queue = $1 AND vt <= NOW()
			ORDER BY msg_id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING msg_id, read_ct, enqueued_at, payload`,
		queue, vt.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("queue read: %w", err)
	}
	defer rows.Close()

	var msgs []*model.QueueMessage
	for rows.Next() {
		var (
			m       model.QueueMessage
			payload []byte
		)
		if err := rows.Scan(&m.MsgID, &m.ReadCount, &m.EnqueuedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan queue message: %w", err)
		}
		m.Payload = payload
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func queryQueueDelete(ctx context.Context, db executor, queue string, msgID int64) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM queue_messages WHERE queue = $1 AND msg_id = $2`,
		queue, msgID)
	if err != nil {
		return fmt.Errorf("queue delete: %w", err)
	}
	return nil
}

func queryQueueArchive(ctx context.Context, db executor, queue string, msgID int64) error {
	_, err := db.ExecContext(ctx, `
		WITH dead AS (
			DELETE FROM queue_messages WHERE queue = $1 AND msg_id = $2
			RETURNING msg_id, queue, read_ct, enqueued_at, payload
		)
		INSERT INTO queue_archive (msg_id, queue, read_ct, enqueued_at, payload)
		SELECT msg_id, queue, read_ct, enqueued_at, payload FROM dead`,
		queue, msgID)
	if err != nil {
		return fmt.Errorf("queue archive: %w", err)
	}
	return nil
}

func queryQueueMetrics(ctx context.Context, db executor, queue string) (*model.QueueMetrics, error) {
	var m model.QueueMetrics
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM queue_messages WHERE queue = $1),
			(SELECT COUNT(*) FROM queue_archive WHERE queue = $1)`,
		queue).Scan(&m.QueueLength, &m.ArchiveLength)
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	return &m, nil
}
