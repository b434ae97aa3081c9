package knowledge

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neo-2022/regart-memory/internal/vecstore"
)

// Audit payload keys. Audit records live in their own collection with a
// placeholder vector; they are scanned, never similarity-queried.
const (
	auditKeyType    = "event_type"
	auditKeyEntryID = "entry_id"
	auditKeyDetails = "details"
)

// appendAudit writes one audit event. The audit trail is best-effort:
// a failed append is logged and never fails the mutation it describes.
func (s *Store) appendAudit(ctx context.Context, ev AuditEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}

	payload := map[string]any{
		auditKeyType: ev.Type,
		keyCreatedAt: float64(ev.CreatedAt.Unix()),
	}
	if ev.Model != "" {
		payload[keyModel] = ev.Model
	}
	if ev.Workspace != "" {
		payload[keyWorkspace] = ev.Workspace
	}
	if ev.EntryID != "" {
		payload[auditKeyEntryID] = ev.EntryID
	}
	if ev.Details != "" {
		payload[auditKeyDetails] = ev.Details
	}

	err := s.audit.Upsert(ctx, []vecstore.Record{{
		ID:      ev.ID,
		Vector:  s.zeroVector(),
		Payload: payload,
	}})
	if err != nil {
		s.logger.Error("audit append failed", "type", ev.Type, "error", err)
	}
}

// ListAuditLog returns audit events, newest first, optionally scoped to a
// workspace and model. Limit caps the result; non-positive means 100.
func (s *Store) ListAuditLog(ctx context.Context, workspace, model string, limit int) ([]AuditEvent, error) {
	if limit < 1 {
		limit = 100
	}

	filter := vecstore.Filter{}
	if workspace != "" {
		filter[keyWorkspace] = workspace
	}
	if model != "" {
		filter[keyModel] = model
	}
	if len(filter) == 0 {
		filter = nil
	}

	var events []AuditEvent
	cursor := ""
	for {
		recs, next, err := s.audit.Scroll(ctx, filter, 200, cursor)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			ev := AuditEvent{ID: rec.ID}
			ev.Type, _ = rec.Payload[auditKeyType].(string)
			ev.Model, _ = rec.Payload[keyModel].(string)
			ev.Workspace, _ = rec.Payload[keyWorkspace].(string)
			ev.EntryID, _ = rec.Payload[auditKeyEntryID].(string)
			ev.Details, _ = rec.Payload[auditKeyDetails].(string)
			if sec := payloadFloat(rec.Payload[keyCreatedAt]); sec > 0 {
				ev.CreatedAt = time.Unix(int64(sec), 0).UTC()
			}
			events = append(events, ev)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
