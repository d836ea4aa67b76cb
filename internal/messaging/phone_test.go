package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeBrazilMobile(t *testing.T) {
	c := NewPhoneCanonicalizer("55")

	tests := []struct {
		name       string
		input      string
		canonical  string
		candidates []string
	}{
		{"with ninth digit", "5511987654321", "5511987654321", []string{"5511987654321", "551187654321"}},
		{"missing ninth digit", "551187654321", "5511987654321", []string{"5511987654321", "551187654321"}},
		{"formatted", "+55 (11) 98765-4321", "5511987654321", []string{"5511987654321", "551187654321"}},
		{"national with ninth digit", "11987654321", "5511987654321", []string{"5511987654321", "551187654321"}},
		{"national without ninth digit", "1187654321", "5511987654321", []string{"5511987654321", "551187654321"}},
		{"campinas ddd 19", "19987654321", "5519987654321", []string{"5519987654321", "551987654321"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := c.Canonicalize(tt.input)
			assert.Equal(t, tt.canonical, key.Canonical)
			assert.Equal(t, tt.candidates, key.Candidates)
			assert.Equal(t, "55", key.CountryCode)
			assert.Equal(t, PhoneMobile, key.Type)
			assert.Equal(t, "87654321", key.SearchKey)
		})
	}
}

func TestCanonicalizeBrazilLandline(t *testing.T) {
	key := PhoneCanonicalizer{}.Canonicalize("551133334444")
	assert.Equal(t, "551133334444", key.Canonical)
	assert.Equal(t, []string{"551133334444"}, key.Candidates)
	assert.Equal(t, PhoneLandline, key.Type)
}

func TestCanonicalizeUSNumbers(t *testing.T) {
	c := NewPhoneCanonicalizer("55")
	for _, input := range []string{"14155552671", "+1 (415) 555-2671"} {
		key := c.Canonicalize(input)
		assert.Equal(t, "14155552671", key.Canonical, input)
		assert.Equal(t, []string{"14155552671"}, key.Candidates, input)
		assert.Equal(t, "1", key.CountryCode, input)
	}
}

func TestCanonicalizeFallsBackOutsideSupportedRange(t *testing.T) {
	c := NewPhoneCanonicalizer("55")

	short := c.Canonicalize("12345")
	assert.Equal(t, "12345", short.Canonical)
	assert.Equal(t, []string{"12345"}, short.Candidates)

	long := c.Canonicalize("1234567890123456789")
	assert.Equal(t, "1234567890123456789", long.Canonical)

	empty := c.Canonicalize("  sem número ")
	assert.Equal(t, "sem número", empty.Canonical)
	assert.Equal(t, PhoneUnknown, empty.Type)
}

func TestCanonicalizeOtherCountriesUnchanged(t *testing.T) {
	key := NewPhoneCanonicalizer("55").Canonicalize("447911123456")
	assert.Equal(t, "447911123456", key.Canonical)
	assert.Equal(t, []string{"447911123456"}, key.Candidates)
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	c := NewPhoneCanonicalizer("55")
	inputs := []string{
		"5511987654321", "551187654321", "11987654321", "1187654321",
		"551133334444", "5512345678", "14155552671", "447911123456",
		"12345", "1234567890123456789", "5521912345678", "552112345678",
		"55987654321", "+55 21 9 8888-7777",
	}
	for _, input := range inputs {
		once := c.Canonicalize(input)
		twice := c.Canonicalize(once.Canonical)
		assert.Equal(t, once.Canonical, twice.Canonical, "input %s", input)
		assert.Equal(t, once.Candidates, twice.Candidates, "input %s", input)
	}
}

func TestNormalizeE164(t *testing.T) {
	assert.Equal(t, "+5511987654321", NormalizeE164(" 55 (11) 98765-4321 "))
	assert.Equal(t, "", NormalizeE164("abc"))
}

func TestCanonicalizeIsIdempotentForOtherHomeCodes(t *testing.T) {
	inputs := []string{
		"3964794237", "13964794237", "4155552671", "11987654321",
		"2125550100", "912345678", "0211234567", "+1 (396) 479-4237",
	}
	for _, home := range []string{"1", "351", "44"} {
		c := NewPhoneCanonicalizer(home)
		for _, input := range inputs {
			once := c.Canonicalize(input)
			twice := c.Canonicalize(once.Canonical)
			assert.Equal(t, once.Canonical, twice.Canonical, "home %s input %s", home, input)
		}
	}

	us := NewPhoneCanonicalizer("1")
	assert.Equal(t, "13964794237", us.Canonicalize("3964794237").Canonical)
	assert.Equal(t, "13964794237", us.Canonicalize("13964794237").Canonical)
}
