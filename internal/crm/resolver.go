package crm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// Repository is the persistence the resolver needs.
type Repository interface {
	FindContactByPhone(ctx context.Context, tenantID uuid.UUID, searchKey string, candidates []string) (*Contact, error)
	UpdateContactName(ctx context.Context, contactID uuid.UUID, name string, state NameState) error
	CreateLead(ctx context.Context, lead NewLead) (*Contact, bool, error)
	UpsertConversation(ctx context.Context, in ConversationUpsert) (uuid.UUID, error)
	ClaimNewLeadNotification(ctx context.Context, contactID uuid.UUID) (bool, error)
}

// Inbound is the sender-side view of one inbound message.
type Inbound struct {
	TenantID    uuid.UUID
	From        string
	ProfileName string
	Text        string
	FreeText    bool
	Referral    *Referral
}

// Resolution is the CRM identity of an inbound message.
type Resolution struct {
	ContactID      uuid.UUID
	ConversationID uuid.UUID
	ContactName    string
	Phone          messaging.PhoneKey
	Created        bool
	NameCaptured   bool
	AwaitingName   bool
}

// ResolverConfig names the funnel every new lead lands in.
type ResolverConfig struct {
	FunnelName string
	ColumnName string
}

// Resolver finds or creates the contact and conversation for a sender.
type Resolver struct {
	repo   Repository
	phones messaging.PhoneCanonicalizer
	cfg    ResolverConfig
	logger *logging.Logger
}

func NewResolver(repo Repository, phones messaging.PhoneCanonicalizer, cfg ResolverConfig, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("crm: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, phones: phones, cfg: cfg, logger: logger}
}

// Resolve returns the contact and conversation for in. Every database error
// is returned so the caller can leave the event for redelivery.
func (r *Resolver) Resolve(ctx context.Context, in Inbound) (*Resolution, error) {
	if strings.TrimSpace(in.From) == "" {
		return nil, ErrMissingSender
	}
	if strings.TrimSpace(r.cfg.FunnelName) == "" {
		return nil, ErrMissingFunnel
	}
	key := r.phones.Canonicalize(in.From)
	res := &Resolution{Phone: key}

	contact, err := r.repo.FindContactByPhone(ctx, in.TenantID, key.SearchKey, key.Candidates)
	switch {
	case err == nil:
		if in.FreeText {
			if named, ok := contact.CaptureName(in.Text); ok {
				if err := r.repo.UpdateContactName(ctx, named.ID, named.Name, named.NameState); err != nil {
					return nil, err
				}
				contact = &named
				res.NameCaptured = true
				r.logger.Info("contact name captured", "tenant_id", in.TenantID.String(), "contact_id", named.ID.String())
			}
		}
	case errors.Is(err, ErrContactNotFound):
		contact, res.Created, err = r.repo.CreateLead(ctx, r.newLead(in, key))
		if err != nil {
			return nil, err
		}
		if res.Created {
			r.logger.Info("lead created", "tenant_id", in.TenantID.String(), "contact_id", contact.ID.String(), "origin", string(contact.Origin))
		}
	default:
		return nil, err
	}

	convID, err := r.repo.UpsertConversation(ctx, ConversationUpsert{
		TenantID:    in.TenantID,
		PhoneNumber: key.Canonical,
		WaID:        strings.TrimSpace(in.From),
		ContactID:   contact.ID,
	})
	if err != nil {
		return nil, err
	}

	res.ContactID = contact.ID
	res.ConversationID = convID
	res.ContactName = contact.Name
	res.AwaitingName = contact.AwaitingName()
	return res, nil
}

// ClaimNewLead reports whether the caller owns the new_lead notification for
// contactID. It is true at most once per WhatsApp-originated contact, no matter
// how many deliveries it took to get the first message stored.
func (r *Resolver) ClaimNewLead(ctx context.Context, contactID uuid.UUID) (bool, error) {
	return r.repo.ClaimNewLeadNotification(ctx, contactID)
}

func (r *Resolver) newLead(in Inbound, key messaging.PhoneKey) NewLead {
	lead := NewLead{
		TenantID:   in.TenantID,
		Name:       strings.TrimSpace(in.ProfileName),
		NameState:  NameKnown,
		Origin:     OriginWhatsApp,
		FunnelName: r.cfg.FunnelName,
		ColumnName: r.cfg.ColumnName,
		Phone: PhoneRecord{
			Number:      key.Canonical,
			CountryCode: key.CountryCode,
			SearchKey:   key.SearchKey,
			Type:        string(key.Type),
		},
	}
	if lead.Name == "" {
		lead.Name = PlaceholderName(key.Canonical)
		lead.NameState = NameAwaiting
	}
	if ref := in.Referral; ref != nil {
		lead.Origin = OriginWhatsAppAd
		if ref.SourceType == "ad" {
			lead.AdID = ref.SourceID
		}
		lead.FormData = map[string]any{
			"referral": map[string]any{
				"source_id":   ref.SourceID,
				"source_type": ref.SourceType,
				"source_url":  ref.SourceURL,
				"headline":    ref.Headline,
				"ctwa_clid":   ref.CtwaClid,
			},
		}
	}
	return lead
}

