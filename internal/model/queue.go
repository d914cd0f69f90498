package model

import (
	"encoding/json"
	"time"
)

// QueueMessage is a raw message leased from the durable queue. The
// payload is owned by the queue until deleted or archived; ReadCount
// is the delivery count used to decide dead-lettering.
type QueueMessage struct {
	MsgID      int64           `json:"msg_id"`
	ReadCount  int             `json:"read_ct"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"message"`
}

// QueueMetrics is a point-in-time snapshot of queue depth.
type QueueMetrics struct {
	QueueLength   int `json:"queue_length"`
	ArchiveLength int `json:"archive_length"`
}
