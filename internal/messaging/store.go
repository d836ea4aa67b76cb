package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of pgxpool.Pool the stores rely on.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	ErrTenantNotFound       = errors.New("messaging: no tenant for phone number id")
	ErrConversationNotFound = errors.New("messaging: conversation not found")
)

// Direction of a message relative to the business.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageRecord is one row of the append-only messages table.
type MessageRecord struct {
	TenantID          uuid.UUID
	ProviderMessageID string
	ConversationID    uuid.UUID
	ContactID         uuid.UUID
	Sender            string
	Receiver          string
	Direction         Direction
	Content           string
	Type              MessageType
	MediaURL          string
	Status            string
	RawPayload        json.RawMessage
	SentAt            time.Time
}

// AttachmentRecord describes stored media for gallery listings.
type AttachmentRecord struct {
	TenantID    uuid.UUID
	ContactID   uuid.UUID
	MessageID   uuid.UUID
	StoragePath string
	URL         string
	FileName    string
	MimeType    string
	SizeBytes   int64
}

// HistoryMessage is the slice of a message the agent needs for context.
type HistoryMessage struct {
	Direction Direction
	Content   string
	Type      MessageType
	SentAt    time.Time
}

// ConversationRecord is the addressing data needed to reply on a conversation.
type ConversationRecord struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	PhoneNumber string
	WaID        string
	ContactID   uuid.UUID
	UnreadCount int
}

// Store persists messages and conversation counters in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// LookupTenantByPhoneNumberID maps the receiving business number to its tenant.
func (s *Store) LookupTenantByPhoneNumberID(ctx context.Context, phoneNumberID string) (uuid.UUID, error) {
	var tenantID uuid.UUID
	query := `SELECT tenant_id FROM whatsapp_numbers WHERE phone_number_id = $1`
	if err := s.pool.QueryRow(ctx, query, phoneNumberID).Scan(&tenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrTenantNotFound
		}
		return uuid.Nil, fmt.Errorf("messaging: lookup tenant: %w", err)
	}
	return tenantID, nil
}

// HasProviderMessage is a cheap pre-check; InsertMessage stays the real guard.
func (s *Store) HasProviderMessage(ctx context.Context, tenantID uuid.UUID, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}
	query := `SELECT 1 FROM messages WHERE tenant_id = $1 AND provider_message_id = $2 LIMIT 1`
	var one int
	if err := s.pool.QueryRow(ctx, query, tenantID, providerMessageID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: check provider message: %w", err)
	}
	return true, nil
}

// InsertMessage writes rec unless a row with the same provider message id
// already exists for the tenant. inserted is false for duplicates, which are
// not an error.
func (s *Store) InsertMessage(ctx context.Context, q Querier, rec MessageRecord) (id uuid.UUID, inserted bool, err error) {
	if q == nil {
		q = s.pool
	}
	if rec.ProviderMessageID == "" {
		return uuid.Nil, false, errors.New("messaging: provider message id required")
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = defaultStatus(rec.Direction)
	}
	var raw any
	if len(rec.RawPayload) > 0 {
		raw = rec.RawPayload
	}
	query := `
		INSERT INTO messages (
			tenant_id, provider_message_id, conversation_id, contact_id,
			sender, receiver, direction, content, message_type,
			media_url, status, is_read, raw_payload, sent_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$13,$14)
		ON CONFLICT (tenant_id, provider_message_id) DO NOTHING
		RETURNING id
	`
	err = q.QueryRow(ctx, query,
		rec.TenantID, rec.ProviderMessageID, rec.ConversationID, nullableUUID(rec.ContactID),
		rec.Sender, rec.Receiver, string(rec.Direction), rec.Content, string(rec.Type),
		rec.MediaURL, rec.Status, rec.Direction == DirectionOutbound, raw, rec.SentAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("messaging: insert message: %w", err)
	}
	return id, true, nil
}

// TouchConversation moves the last-message pointer and, for inbound messages,
// bumps the unread counter from its current value. The read and the write are
// separate single-row statements; a concurrent bump can be lost, which the
// next read of the conversation corrects for the UI.
func (s *Store) TouchConversation(ctx context.Context, conversationID, messageID uuid.UUID, inbound bool) error {
	var unread int
	if err := s.pool.QueryRow(ctx, `SELECT unread_count FROM conversations WHERE id = $1`, conversationID).Scan(&unread); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("messaging: read unread count: %w", err)
	}
	if inbound {
		unread++
	}
	query := `
		UPDATE conversations
		SET last_message_id = $2, unread_count = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, conversationID, messageID, unread); err != nil {
		return fmt.Errorf("messaging: touch conversation: %w", err)
	}
	return nil
}

// UpdateMedia replaces the placeholder of a media message once stored.
func (s *Store) UpdateMedia(ctx context.Context, messageID uuid.UUID, mediaURL, content string) error {
	query := `UPDATE messages SET media_url = $2, content = $3, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, messageID, mediaURL, content)
	if err != nil {
		return fmt.Errorf("messaging: update media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("messaging: update media: message %s not found", messageID)
	}
	return nil
}

func (s *Store) InsertAttachment(ctx context.Context, rec AttachmentRecord) (uuid.UUID, error) {
	query := `
		INSERT INTO attachments (tenant_id, contact_id, message_id, storage_path, url, file_name, mime_type, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (message_id) DO UPDATE
		SET storage_path = EXCLUDED.storage_path, url = EXCLUDED.url
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		rec.TenantID, nullableUUID(rec.ContactID), rec.MessageID, rec.StoragePath,
		rec.URL, rec.FileName, rec.MimeType, rec.SizeBytes,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("messaging: insert attachment: %w", err)
	}
	return id, nil
}

var statusRank = map[string]int{
	"accepted":  1,
	"sent":      2,
	"delivered": 3,
	"read":      4,
	"failed":    5,
}

// UpdateStatusByProviderID applies a delivery receipt. Receipts can arrive out
// of order, so a status never moves backwards (read is not replaced by delivered).
func (s *Store) UpdateStatusByProviderID(ctx context.Context, tenantID uuid.UUID, providerMessageID, status string) (bool, error) {
	rank, ok := statusRank[status]
	if !ok {
		return false, fmt.Errorf("messaging: unknown delivery status %q", status)
	}
	query := `
		UPDATE messages
		SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND provider_message_id = $2
		  AND (CASE status
		         WHEN 'accepted' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3
		         WHEN 'read' THEN 4 WHEN 'failed' THEN 5 ELSE 0 END) < $4
	`
	tag, err := s.pool.Exec(ctx, query, tenantID, providerMessageID, status, rank)
	if err != nil {
		return false, fmt.Errorf("messaging: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentMessages returns up to limit messages of a conversation in
// chronological order, skipping the message currently being handled.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int, excludeProviderID string) ([]HistoryMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT direction, content, message_type, sent_at
		FROM messages
		WHERE conversation_id = $1 AND provider_message_id <> $2
		ORDER BY sent_at DESC, created_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, conversationID, excludeProviderID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: recent messages: %w", err)
	}
	defer rows.Close()

	var out []HistoryMessage
	for rows.Next() {
		var (
			m         HistoryMessage
			direction string
			msgType   string
		)
		if err := rows.Scan(&direction, &m.Content, &msgType, &m.SentAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		m.Direction = Direction(direction)
		m.Type = MessageType(msgType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: iterate messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetConversation loads a tenant's conversation for an outbound send.
func (s *Store) GetConversation(ctx context.Context, tenantID, conversationID uuid.UUID) (*ConversationRecord, error) {
	query := `
		SELECT id, tenant_id, phone_number, wa_id, contact_id, unread_count
		FROM conversations
		WHERE tenant_id = $1 AND id = $2
	`
	var (
		rec       ConversationRecord
		contactID *uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, tenantID, conversationID).Scan(
		&rec.ID, &rec.TenantID, &rec.PhoneNumber, &rec.WaID, &contactID, &rec.UnreadCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("messaging: get conversation: %w", err)
	}
	if contactID != nil {
		rec.ContactID = *contactID
	}
	return &rec, nil
}

// MarkConversationRead resets the unread counter and flags inbound messages as read.
func (s *Store) MarkConversationRead(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("messaging: reset unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_read = true WHERE conversation_id = $1 AND direction = 'inbound' AND NOT is_read`,
		conversationID); err != nil {
		return fmt.Errorf("messaging: mark messages read: %w", err)
	}
	return nil
}

// SetNeedsHuman flags a conversation for operator attention.
func (s *Store) SetNeedsHuman(ctx context.Context, conversationID uuid.UUID, needsHuman bool) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET needs_human = $2, updated_at = now() WHERE id = $1`,
		conversationID, needsHuman); err != nil {
		return fmt.Errorf("messaging: set needs human: %w", err)
	}
	return nil
}

func defaultStatus(d Direction) string {
	if d == DirectionOutbound {
		return "sent"
	}
	return "received"
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
