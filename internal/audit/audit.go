// Package audit implements the append-only admin mutation log (spec's Audit
// entry): a synchronous writer. WriteTx inserts within the caller's
// transaction, so the entry exists if and only if that mutation committed;
// Write inserts on its own after a mutation that has already committed (the
// old-data cleanup), so a failed Write leaves that mutation without an entry.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/feedbackapi/internal/auth"
)

// Action is the tag applied to every audit entry. The taxonomy is fixed —
// relabel, reassign, create, delete — per the Audit entry invariants.
type Action string

const (
	ActionRelabel  Action = "relabel"
	ActionReassign Action = "reassign"
	ActionCreate   Action = "create"
	ActionDelete   Action = "delete"
)

// Entry represents a single audit log entry to be written. Entries are
// immutable once logged — the table is append-only, never updated or
// deleted.
type Entry struct {
	ID        uuid.UUID
	TopicID   *int64 // nullable for global acts
	Action    Action
	Before    json.RawMessage
	After     json.RawMessage
	ActorName string
	ActorIP   *netip.Addr
	ActorUA   *string
	Timestamp time.Time
}

// Writer inserts audit entries. WriteTx must be used for any entry paired
// with a mutation, so the two land in the same transaction; Write is for
// entries with no enclosing transaction of their own.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWriter creates an audit Writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// EntryFromRequest builds an Entry from the mutating request's actor, IP,
// and user agent, filling in a fresh id and timestamp. It does not write
// anything — callers pass the result to WriteTx or Write.
func (w *Writer) EntryFromRequest(r *http.Request, action Action, topicID *int64, before, after json.RawMessage) Entry {
	entry := Entry{
		ID:        uuid.New(),
		TopicID:   topicID,
		Action:    action,
		Before:    before,
		After:     after,
		Timestamp: time.Now().UTC(),
	}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.ActorName = id.Subject
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.ActorIP = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.ActorUA = &ua
	}

	return entry
}

// WriteTx inserts entry within tx. Callers must call this before committing
// their own transaction, so the audit row only persists alongside the
// mutation it describes.
func (w *Writer) WriteTx(ctx context.Context, tx pgx.Tx, entry Entry) error {
	_, err := tx.Exec(ctx, insertSQL, entryArgs(entry)...)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// Write inserts entry directly against the pool, for mutations that have no
// enclosing transaction of their own (e.g. the non-transactional cleanup
// job). It is still a synchronous, single-row write — never buffered.
func (w *Writer) Write(ctx context.Context, entry Entry) error {
	_, err := w.pool.Exec(ctx, insertSQL, entryArgs(entry)...)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

const insertSQL = `INSERT INTO audit_log (id, topic_id, action, before_data, after_data, actor_name, actor_ip, actor_ua, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func entryArgs(e Entry) []any {
	var ipStr *string
	if e.ActorIP != nil {
		s := e.ActorIP.String()
		ipStr = &s
	}
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return []any{id, e.TopicID, string(e.Action), nullJSON(e.Before), nullJSON(e.After), e.ActorName, ipStr, e.ActorUA, ts}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
