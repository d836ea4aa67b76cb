package crm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Classification tags a contact in the CRM.
type Classification string

const (
	ClassificationLead   Classification = "lead"
	ClassificationClient Classification = "client"
	ClassificationOther  Classification = "other"
)

// Origin records how a contact entered the CRM.
type Origin string

const (
	OriginWhatsApp   Origin = "whatsapp"
	OriginWhatsAppAd Origin = "whatsapp_ad"
	OriginManual     Origin = "manual"
)

// NameState tracks whether the contact's display name came from a person.
type NameState string

const (
	NameKnown    NameState = "known"
	NameAwaiting NameState = "awaiting"
)

const (
	maxNameRunes = 80
	maxNameWords = 5
)

// Contact is a person or company the business talks to.
type Contact struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	Classification Classification
	Origin         Origin
	LeadID         string
	AdID           string
	FormID         string
	FormData       map[string]any
	NameState      NameState
}

// AwaitingName reports whether the next free-text message should become the name.
func (c Contact) AwaitingName() bool {
	return c.NameState == NameAwaiting
}

// CaptureName applies the awaiting -> known transition using text typed by
// the contact. It returns the contact unchanged and false when the contact is
// not awaiting a name or the text does not look like one.
func (c Contact) CaptureName(text string) (Contact, bool) {
	if !c.AwaitingName() {
		return c, false
	}
	name, ok := plausibleName(text)
	if !ok {
		return c, false
	}
	c.Name = name
	c.NameState = NameKnown
	return c, true
}

// PlaceholderName is the display name used until the contact tells us theirs.
func PlaceholderName(canonicalPhone string) string {
	suffix := canonicalPhone
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "Lead WhatsApp " + suffix
}

func plausibleName(text string) (string, bool) {
	name := strings.Join(strings.Fields(text), " ")
	if name == "" || utf8.RuneCountInString(name) > maxNameRunes {
		return "", false
	}
	if len(strings.Fields(name)) > maxNameWords {
		return "", false
	}
	hasLetter := false
	for _, r := range name {
		switch {
		case unicode.IsDigit(r), r == '?', r == '@', r == '/':
			return "", false
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	return name, hasLetter
}

// Referral carries click-to-WhatsApp ad attribution for new contacts.
type Referral struct {
	SourceID   string
	SourceType string
	SourceURL  string
	Headline   string
	CtwaClid   string
}

// NewLead is everything needed to create a contact on first contact.
type NewLead struct {
	TenantID   uuid.UUID
	Name       string
	NameState  NameState
	Origin     Origin
	AdID       string
	FormData   map[string]any
	Phone      PhoneRecord
	FunnelName string
	ColumnName string
}

// PhoneRecord is the canonical phone row attached to a contact.
type PhoneRecord struct {
	Number      string
	CountryCode string
	SearchKey   string
	Type        string
}

// ConversationUpsert keys a conversation by tenant and canonical number.
type ConversationUpsert struct {
	TenantID    uuid.UUID
	PhoneNumber string
	WaID        string
	ContactID   uuid.UUID
}
