package whatsappclient

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// maxTextRunes is the Cloud API limit for a text body, counted in characters.
const maxTextRunes = 4096

// SendTextRequest describes an outbound free-form text message.
type SendTextRequest struct {
	// PhoneNumberID overrides the client's default sending number.
	PhoneNumberID    string
	To               string
	Body             string
	PreviewURL       bool
	ReplyToMessageID string
}

func (r SendTextRequest) validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("whatsappclient: recipient required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("whatsappclient: message body required")
	}
	if utf8.RuneCountInString(r.Body) > maxTextRunes {
		return errors.New("whatsappclient: message body exceeds 4096 characters")
	}
	return nil
}

// SendResponse carries the provider message id used as the dedup key.
type SendResponse struct {
	MessageID string
	WaID      string
}

// MediaInfo is the response of GET /{media-id}.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

type sendTextPayload struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             textBody      `json:"text"`
	Context          *replyContext `json:"context,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type replyContext struct {
	MessageID string `json:"message_id"`
}

// Webhook envelope types. Every field is optional on the wire; callers must
// tolerate partial payloads.

type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []ContactProfile `json:"contacts"`
	Messages         []Message        `json:"messages"`
	Statuses         []Status         `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type ContactProfile struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// ProfileName returns the sender's profile name for waID, if the envelope has one.
func (v Value) ProfileName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return strings.TrimSpace(c.Profile.Name)
		}
	}
	if len(v.Contacts) == 1 {
		return strings.TrimSpace(v.Contacts[0].Profile.Name)
	}
	return ""
}

// Message is one inbound message of any type.
type Message struct {
	From        string          `json:"from"`
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Context     *MessageContext `json:"context,omitempty"`
	Text        *Text           `json:"text,omitempty"`
	Image       *Media          `json:"image,omitempty"`
	Video       *Media          `json:"video,omitempty"`
	Audio       *Media          `json:"audio,omitempty"`
	Sticker     *Media          `json:"sticker,omitempty"`
	Document    *Media          `json:"document,omitempty"`
	Interactive *Interactive    `json:"interactive,omitempty"`
	Button      *Button         `json:"button,omitempty"`
	Reaction    *Reaction       `json:"reaction,omitempty"`
	Location    *Location       `json:"location,omitempty"`
	Contacts    []SharedContact `json:"contacts,omitempty"`
	System      *System         `json:"system,omitempty"`
	Referral    *Referral       `json:"referral,omitempty"`
}

// MediaPayload returns the media block for media message types.
func (m Message) MediaPayload() *Media {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "sticker":
		return m.Sticker
	case "document":
		return m.Document
	}
	return nil
}

type MessageContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"list_reply,omitempty"`
	NFMReply *struct {
		Name         string `json:"name"`
		Body         string `json:"body"`
		ResponseJSON string `json:"response_json"`
	} `json:"nfm_reply,omitempty"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type SharedContact struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
		FirstName     string `json:"first_name"`
	} `json:"name"`
	Phones []struct {
		Phone string `json:"phone"`
		WaID  string `json:"wa_id"`
		Type  string `json:"type"`
	} `json:"phones"`
}

type System struct {
	Body    string `json:"body"`
	Type    string `json:"type"`
	NewWaID string `json:"new_wa_id,omitempty"`
}

// Referral is present when the conversation started from a click-to-WhatsApp ad.
type Referral struct {
	SourceURL  string `json:"source_url"`
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
	Headline   string `json:"headline"`
	Body       string `json:"body"`
	CtwaClid   string `json:"ctwa_clid"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}
