package media

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStoragePathLayout(t *testing.T) {
	contactID := uuid.MustParse("6f1c2a9e-3b7d-4c1e-9a55-0d2f7e6b8c41")
	at := time.Date(2024, time.March, 9, 23, 59, 0, 0, time.UTC)

	got := StoragePath(contactID, at, "wamid.ABC", "Planta Baixa.pdf", "application/pdf")

	assert.True(t, strings.HasPrefix(got, "received/6f1c2a9e-3b7d-4c1e-9a55-0d2f7e6b8c41/2024/03/"), got)
	assert.True(t, strings.HasSuffix(got, "_Planta_Baixa.pdf"), got)
}

func TestStoragePathUnassigned(t *testing.T) {
	at := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	got := StoragePath(uuid.Nil, at, "wamid.X", "", "image/jpeg")
	assert.True(t, strings.HasPrefix(got, "received/unassigned/2025/11/"), got)
	assert.True(t, strings.HasSuffix(got, "_media.jpg"), got)
}

func TestStoragePathDeterministic(t *testing.T) {
	contactID := uuid.New()
	at := time.Now()
	a := StoragePath(contactID, at, "wamid.1", "foto.jpg", "image/jpeg")
	b := StoragePath(contactID, at, "wamid.1", "foto.jpg", "image/jpeg")
	c := StoragePath(contactID, at, "wamid.2", "foto.jpg", "image/jpeg")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "different messages with the same file name must not collide")
}

func TestStoragePathUsesUTCMonth(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	at := time.Date(2024, time.January, 31, 22, 0, 0, 0, loc)
	got := StoragePath(uuid.Nil, at, "wamid.1", "a.txt", "text/plain")
	assert.Contains(t, got, "/2024/02/")
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"Contrato Assinado.pdf":        "Contrato_Assinado.pdf",
		"../../etc/passwd":             "passwd",
		`C:\Users\ana\Decoração.png`: "Decoracao.png",
		"  ...  ":                      "",
		"fotos (1) #2.jpeg":            "fotos_1_2.jpeg",
		"":                             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), "input %q", in)
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFileName(long)
	assert.Len(t, got, maxFileNameLen)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".ogg", ExtensionFor("audio/ogg; codecs=opus"))
	assert.Equal(t, ".jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, ".docx", ExtensionFor("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.Equal(t, ".bin", ExtensionFor("application/x-totally-unknown"))
	assert.Equal(t, ".bin", ExtensionFor(""))
}
