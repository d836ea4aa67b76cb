package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository relies on.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on the CRM tables.
type PostgresRepository struct {
	pool PgxPool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL-backed repository.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("crm: pgx pool cannot be nil")
	}
	return &PostgresRepository{pool: pool}
}

// FindContactByPhone matches exactly against the candidate numbers within one
// tenant. search_key narrows the index scan; the canonical form wins ties.
func (r *PostgresRepository) FindContactByPhone(ctx context.Context, tenantID uuid.UUID, searchKey string, candidates []string) (*Contact, error) {
	return findContactByPhone(ctx, r.pool, tenantID, searchKey, candidates)
}

func findContactByPhone(ctx context.Context, q querier, tenantID uuid.UUID, searchKey string, candidates []string) (*Contact, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.classification, c.origin,
			COALESCE(c.lead_id, ''), COALESCE(c.ad_id, ''), COALESCE(c.form_id, ''), c.name_state
		FROM phone_numbers p
		JOIN contacts c ON c.id = p.contact_id
		WHERE p.tenant_id = $1 AND p.search_key = $2 AND p.number = ANY($3)
		ORDER BY array_position($3, p.number), p.created_at
		LIMIT 1
	`
	var (
		c              Contact
		classification string
		origin         string
		nameState      string
	)
	err := q.QueryRow(ctx, query, tenantID, searchKey, candidates).Scan(
		&c.ID, &c.TenantID, &c.Name, &classification, &origin,
		&c.LeadID, &c.AdID, &c.FormID, &nameState,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("crm: find contact by phone: %w", err)
	}
	c.Classification = Classification(classification)
	c.Origin = Origin(origin)
	c.NameState = NameState(nameState)
	return &c, nil
}

func (r *PostgresRepository) UpdateContactName(ctx context.Context, contactID uuid.UUID, name string, state NameState) error {
	query := `UPDATE contacts SET name = $2, name_state = $3, updated_at = now() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, contactID, name, string(state)); err != nil {
		return fmt.Errorf("crm: update contact name: %w", err)
	}
	return nil
}

// ClaimNewLeadNotification marks the contact's new_lead notification as taken.
// Contacts created outside WhatsApp never qualify.
func (r *PostgresRepository) ClaimNewLeadNotification(ctx context.Context, contactID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contacts SET new_lead_notified_at = now()
		WHERE id = $1
		  AND new_lead_notified_at IS NULL
		  AND origin IN ('whatsapp', 'whatsapp_ad')
	`, contactID)
	if err != nil {
		return false, fmt.Errorf("crm: claim new lead notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateLead creates the contact, its phone record and its funnel placement in
// one transaction. When a concurrent first contact for the same number wins
// the phone insert, the transaction is discarded and the winner is returned
// with created=false.
func (r *PostgresRepository) CreateLead(ctx context.Context, lead NewLead) (_ *Contact, created bool, err error) {
	if lead.FunnelName == "" {
		return nil, false, ErrMissingFunnel
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("crm: begin: %w", err)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(ctx)
		}
	}()

	funnelID, err := ensureFunnel(ctx, tx, lead.TenantID, lead.FunnelName)
	if err != nil {
		return nil, false, err
	}
	columnID, err := ensureFirstColumn(ctx, tx, funnelID, lead.ColumnName)
	if err != nil {
		return nil, false, err
	}

	formData, err := json.Marshal(nonNilMap(lead.FormData))
	if err != nil {
		return nil, false, fmt.Errorf("crm: marshal form data: %w", err)
	}
	var contactID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, name, classification, origin, ad_id, form_data, name_state)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id
	`, lead.TenantID, lead.Name, string(ClassificationLead), string(lead.Origin), lead.AdID, formData, string(lead.NameState)).Scan(&contactID)
	if err != nil {
		return nil, false, fmt.Errorf("crm: insert contact: %w", err)
	}

	var phoneID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO phone_numbers (tenant_id, contact_id, number, country_code, search_key, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, number) DO NOTHING
		RETURNING id
	`, lead.TenantID, contactID, lead.Phone.Number, lead.Phone.CountryCode, lead.Phone.SearchKey, lead.Phone.Type).Scan(&phoneID)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		finished = true
		winner, findErr := findContactByPhone(ctx, r.pool, lead.TenantID, lead.Phone.SearchKey, []string{lead.Phone.Number})
		if findErr != nil {
			return nil, false, fmt.Errorf("crm: re-read contact after phone conflict: %w", findErr)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("crm: insert phone: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO funnel_placements (contact_id, funnel_id, column_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id, funnel_id) DO NOTHING
	`, contactID, funnelID, columnID); err != nil {
		return nil, false, fmt.Errorf("crm: place contact in funnel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("crm: commit lead: %w", err)
	}
	finished = true

	return &Contact{
		ID:             contactID,
		TenantID:       lead.TenantID,
		Name:           lead.Name,
		Classification: ClassificationLead,
		Origin:         lead.Origin,
		AdID:           lead.AdID,
		FormData:       lead.FormData,
		NameState:      lead.NameState,
	}, true, nil
}

// ensureFunnel is find-or-create: a concurrent insert of the same funnel makes
// ours a no-op and the follow-up read returns the committed row.
func ensureFunnel(ctx context.Context, q querier, tenantID uuid.UUID, name string) (uuid.UUID, error) {
	if _, err := q.Exec(ctx, `
		INSERT INTO funnels (tenant_id, name, is_default)
		VALUES ($1, $2, true)
		ON CONFLICT (tenant_id, name) DO NOTHING
	`, tenantID, name); err != nil {
		return uuid.Nil, fmt.Errorf("crm: ensure funnel: %w", err)
	}
	var id uuid.UUID
	if err := q.QueryRow(ctx, `SELECT id FROM funnels WHERE tenant_id = $1 AND name = $2`, tenantID, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("crm: read funnel: %w", err)
	}
	return id, nil
}

func ensureFirstColumn(ctx context.Context, q querier, funnelID uuid.UUID, name string) (uuid.UUID, error) {
	if name == "" {
		name = "Novo lead"
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO pipeline_columns (funnel_id, name, position)
		VALUES ($1, $2, 0)
		ON CONFLICT (funnel_id, position) DO NOTHING
	`, funnelID, name); err != nil {
		return uuid.Nil, fmt.Errorf("crm: ensure first column: %w", err)
	}
	var id uuid.UUID
	if err := q.QueryRow(ctx, `
		SELECT id FROM pipeline_columns WHERE funnel_id = $1 ORDER BY position LIMIT 1
	`, funnelID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("crm: read first column: %w", err)
	}
	return id, nil
}

// UpsertConversation creates the conversation on first sight; afterwards it
// only bumps updated_at, refreshes the provider id and fills a missing contact.
func (r *PostgresRepository) UpsertConversation(ctx context.Context, in ConversationUpsert) (uuid.UUID, error) {
	query := `
		INSERT INTO conversations (tenant_id, phone_number, wa_id, contact_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone_number) DO UPDATE
		SET updated_at = now(),
			wa_id = EXCLUDED.wa_id,
			contact_id = COALESCE(conversations.contact_id, EXCLUDED.contact_id)
		RETURNING id
	`
	var contactID any
	if in.ContactID != uuid.Nil {
		contactID = in.ContactID
	}
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, query, in.TenantID, in.PhoneNumber, in.WaID, contactID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("crm: upsert conversation: %w", err)
	}
	return id, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
