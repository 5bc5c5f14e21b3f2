package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartwatts/device-verification/internal/trust"
)

// PostgresSink appends entries to the verification_audit_log table. The
// table has no UPDATE or DELETE path; the sink only ever inserts.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Append(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_audit_log (id, event_type, device_id, occurred_at, trust_category, reason_code, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, string(entry.Event), entry.DeviceID, entry.Timestamp,
		string(entry.TrustCategory), entry.ReasonCode, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) ListByDevice(ctx context.Context, deviceID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, device_id, occurred_at, trust_category, reason_code, detail
		 FROM verification_audit_log
		 WHERE device_id = $1
		 ORDER BY occurred_at ASC, id ASC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var event, category string
		if err := rows.Scan(&e.ID, &event, &e.DeviceID, &e.Timestamp, &category, &e.ReasonCode, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Event = EventType(event)
		e.TrustCategory = trust.Category(category)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
