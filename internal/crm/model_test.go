package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureName(t *testing.T) {
	awaiting := Contact{Name: PlaceholderName("5511987654321"), NameState: NameAwaiting}

	tests := []struct {
		name   string
		text   string
		ok     bool
		result string
	}{
		{"simple name", "João", true, "João"},
		{"full name with extra spaces", "  Maria   da  Silva ", true, "Maria da Silva"},
		{"question", "quanto custa o apartamento?", false, ""},
		{"digits", "apto 302", false, ""},
		{"too many words", "oi eu gostaria de saber mais sobre", false, ""},
		{"empty", "   ", false, ""},
		{"emoji only", "👍", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := awaiting.CaptureName(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.result, got.Name)
				assert.Equal(t, NameKnown, got.NameState)
				assert.False(t, got.AwaitingName())
			} else {
				assert.Equal(t, awaiting, got)
			}
		})
	}
}

func TestCaptureNameIsOneShot(t *testing.T) {
	c := Contact{Name: "Lead WhatsApp 4321", NameState: NameAwaiting}
	named, ok := c.CaptureName("Ana")
	assert.True(t, ok)

	again, ok := named.CaptureName("Beatriz")
	assert.False(t, ok)
	assert.Equal(t, "Ana", again.Name)
}

func TestPlaceholderName(t *testing.T) {
	assert.Equal(t, "Lead WhatsApp 4321", PlaceholderName("5511987654321"))
	assert.Equal(t, "Lead WhatsApp 12", PlaceholderName("12"))
}
