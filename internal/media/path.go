package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/realty-inbox/pkg/textnorm"
)

const (
	rootPrefix      = "received"
	unassigned      = "unassigned"
	maxFileNameLen  = 100
	digestPrefixLen = 8
)

var knownExtensions = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/webp":               ".webp",
	"audio/ogg":                ".ogg",
	"audio/mpeg":               ".mp3",
	"audio/mp4":                ".m4a",
	"audio/aac":                ".aac",
	"audio/amr":                ".amr",
	"video/mp4":                ".mp4",
	"video/3gpp":               ".3gp",
	"application/pdf":          ".pdf",
	"text/plain":               ".txt",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
}

// StoragePath builds received/{contact_id|unassigned}/{YYYY}/{MM}/{name}.
// The same inputs always give the same key.
func StoragePath(contactID uuid.UUID, at time.Time, providerMessageID, originalName, mimeType string) string {
	owner := unassigned
	if contactID != uuid.Nil {
		owner = contactID.String()
	}
	at = at.UTC()
	return path.Join(
		rootPrefix,
		owner,
		fmt.Sprintf("%04d", at.Year()),
		fmt.Sprintf("%02d", int(at.Month())),
		FileName(providerMessageID, originalName, mimeType),
	)
}

// FileName derives the stored file name: a short digest of the provider
// message id followed by the sanitized original name, or by the message id
// and an extension from the mime type when there is no original name.
func FileName(providerMessageID, originalName, mimeType string) string {
	sum := sha256.Sum256([]byte(providerMessageID))
	digest := hex.EncodeToString(sum[:])[:digestPrefixLen]

	name := SanitizeFileName(originalName)
	if name == "" {
		name = "media" + ExtensionFor(mimeType)
	}
	return digest + "_" + name
}

// SanitizeFileName keeps ASCII letters, digits, dot, dash and underscore.
// Accents are stripped and every other run of characters becomes one underscore.
func SanitizeFileName(name string) string {
	name = textnorm.StripAccents(path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if len(out) > maxFileNameLen {
		ext := path.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxFileNameLen-len(ext)] + ext
	}
	return out
}

// ExtensionFor maps a mime type (parameters allowed) to a file extension.
func ExtensionFor(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := knownExtensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
