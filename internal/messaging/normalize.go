package messaging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
)

// MessageType is the normalized type tag stored on every message row.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeInteractive MessageType = "interactive"
	TypeButton      MessageType = "button"
	TypeImage       MessageType = "image"
	TypeVideo       MessageType = "video"
	TypeAudio       MessageType = "audio"
	TypeSticker     MessageType = "sticker"
	TypeDocument    MessageType = "document"
	TypeReaction    MessageType = "reaction"
	TypeLocation    MessageType = "location"
	TypeContacts    MessageType = "contacts"
	TypeSystem      MessageType = "system"
	TypeUnsupported MessageType = "unsupported"
)

// MediaPlaceholder is shown while a media message is still being ingested,
// and stays in place when ingestion fails.
const MediaPlaceholder = "[Mídia sendo processada]"

// IsMedia reports whether the type carries a provider media handle.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeSticker, TypeDocument:
		return true
	}
	return false
}

// IsConversational reports whether the agent should reply to this type.
func (t MessageType) IsConversational() bool {
	return t == TypeText || t == TypeInteractive || t == TypeButton
}

// Normalized is the human-readable rendering of one inbound message.
type Normalized struct {
	Type    MessageType
	Content string
	// FreeText is true when Content was typed by the person, as opposed to a
	// button title or a rendered placeholder.
	FreeText bool
	Media    *MediaRef
}

// MediaRef identifies provider media still to be ingested.
type MediaRef struct {
	ID       string
	MimeType string
	FileName string
	Caption  string
}

var mediaLabels = map[MessageType]string{
	TypeImage:    "[Imagem]",
	TypeVideo:    "[Vídeo]",
	TypeAudio:    "[Áudio]",
	TypeSticker:  "[Figurinha]",
	TypeDocument: "[Documento]",
}

// Normalize renders any inbound payload as content plus a type tag. It never
// fails: unknown or malformed payloads degrade to a placeholder string.
func Normalize(msg whatsappclient.Message) Normalized {
	switch MessageType(msg.Type) {
	case TypeText:
		if msg.Text == nil {
			return unsupported(msg.Type)
		}
		return Normalized{Type: TypeText, Content: strings.TrimSpace(msg.Text.Body), FreeText: true}

	case TypeInteractive:
		return normalizeInteractive(msg)

	case TypeButton:
		if msg.Button == nil {
			return unsupported(msg.Type)
		}
		content := firstNonEmpty(msg.Button.Text, msg.Button.Payload)
		return Normalized{Type: TypeButton, Content: content}

	case TypeImage, TypeVideo, TypeAudio, TypeSticker, TypeDocument:
		return normalizeMedia(MessageType(msg.Type), msg.MediaPayload())

	case TypeReaction:
		if msg.Reaction == nil {
			return unsupported(msg.Type)
		}
		if msg.Reaction.Emoji == "" {
			return Normalized{Type: TypeReaction, Content: "Removeu a reação"}
		}
		return Normalized{Type: TypeReaction, Content: "Reagiu com " + msg.Reaction.Emoji}

	case TypeLocation:
		if msg.Location == nil {
			return unsupported(msg.Type)
		}
		return Normalized{Type: TypeLocation, Content: renderLocation(*msg.Location)}

	case TypeContacts:
		if len(msg.Contacts) == 0 {
			return unsupported(msg.Type)
		}
		return Normalized{Type: TypeContacts, Content: renderContacts(msg.Contacts)}

	case TypeSystem:
		if msg.System == nil {
			return Normalized{Type: TypeSystem, Content: "[Evento do sistema]"}
		}
		return Normalized{Type: TypeSystem, Content: firstNonEmpty(msg.System.Body, "[Evento do sistema]")}
	}
	return unsupported(msg.Type)
}

func normalizeInteractive(msg whatsappclient.Message) Normalized {
	in := msg.Interactive
	if in == nil {
		return unsupported(msg.Type)
	}
	switch {
	case in.ButtonReply != nil:
		return Normalized{Type: TypeInteractive, Content: firstNonEmpty(in.ButtonReply.Title, in.ButtonReply.ID)}
	case in.ListReply != nil:
		content := firstNonEmpty(in.ListReply.Title, in.ListReply.ID)
		if in.ListReply.Description != "" {
			content += " - " + in.ListReply.Description
		}
		return Normalized{Type: TypeInteractive, Content: content}
	case in.NFMReply != nil:
		return Normalized{Type: TypeInteractive, Content: firstNonEmpty(in.NFMReply.Body, in.NFMReply.ResponseJSON)}
	}
	return unsupported(msg.Type)
}

func normalizeMedia(t MessageType, media *whatsappclient.Media) Normalized {
	label := mediaLabels[t]
	if media == nil || media.ID == "" {
		return Normalized{Type: t, Content: label}
	}
	content := label
	if caption := strings.TrimSpace(media.Caption); caption != "" {
		content = caption
	} else if t == TypeDocument && media.Filename != "" {
		content = label + " " + media.Filename
	}
	return Normalized{
		Type:    t,
		Content: content,
		Media: &MediaRef{
			ID:       media.ID,
			MimeType: media.MimeType,
			FileName: media.Filename,
			Caption:  strings.TrimSpace(media.Caption),
		},
	}
}

func renderLocation(loc whatsappclient.Location) string {
	coords := strconv.FormatFloat(loc.Latitude, 'f', 6, 64) + ", " + strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
	parts := []string{}
	if loc.Name != "" {
		parts = append(parts, loc.Name)
	}
	if loc.Address != "" {
		parts = append(parts, loc.Address)
	}
	if len(parts) == 0 {
		return "📍 Localização: " + coords
	}
	return fmt.Sprintf("📍 Localização: %s (%s)", strings.Join(parts, " - "), coords)
}

func renderContacts(contacts []whatsappclient.SharedContact) string {
	rendered := make([]string, 0, len(contacts))
	for _, c := range contacts {
		name := firstNonEmpty(c.Name.FormattedName, c.Name.FirstName, "Sem nome")
		if len(c.Phones) > 0 {
			name += " " + firstNonEmpty(c.Phones[0].Phone, c.Phones[0].WaID)
		}
		rendered = append(rendered, strings.TrimSpace(name))
	}
	return "👤 Contato compartilhado: " + strings.Join(rendered, "; ")
}

func unsupported(rawType string) Normalized {
	if rawType == "" {
		rawType = "desconhecido"
	}
	return Normalized{Type: TypeUnsupported, Content: "[Mensagem não suportada: " + rawType + "]"}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
