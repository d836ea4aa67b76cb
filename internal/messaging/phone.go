package messaging

import "strings"

// PhoneType labels a canonical number.
type PhoneType string

const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
	PhoneUnknown  PhoneType = "unknown"
)

const (
	brazilCode     = "55"
	nanpCode       = "1"
	searchKeyWidth = 8
	minDigits      = 8
	maxDigits      = 15
)

// PhoneKey is the canonicalization result for one provider phone string.
type PhoneKey struct {
	// Canonical is the single form stored on new records.
	Canonical string
	// Candidates are every form an existing record may have been stored under.
	// Canonical is always the first element.
	Candidates  []string
	CountryCode string
	// SearchKey is the trailing subscriber digits, identical for all candidates.
	SearchKey string
	Type      PhoneType
}

// PhoneCanonicalizer reconciles Brazilian 8/9-digit mobile numbers and NANP
// numbers into a stable key. The zero value uses Brazil as home country.
type PhoneCanonicalizer struct {
	HomeCountryCode string
}

// NewPhoneCanonicalizer returns a canonicalizer for the given home dialing code.
func NewPhoneCanonicalizer(homeCountryCode string) PhoneCanonicalizer {
	return PhoneCanonicalizer{HomeCountryCode: onlyDigits(homeCountryCode)}
}

func (p PhoneCanonicalizer) home() string {
	if p.HomeCountryCode == "" {
		return brazilCode
	}
	return p.HomeCountryCode
}

// Canonicalize is best-effort and never fails. Inputs outside the supported
// digit range come back as received.
func (p PhoneCanonicalizer) Canonicalize(raw string) PhoneKey {
	digits := onlyDigits(raw)
	if digits == "" {
		trimmed := strings.TrimSpace(raw)
		return PhoneKey{Canonical: trimmed, Candidates: []string{trimmed}, SearchKey: trimmed, Type: PhoneUnknown}
	}
	if len(digits) < minDigits || len(digits) > maxDigits {
		return asReceived(digits, "")
	}

	if isNANPWithCode(digits) {
		return asReceived(digits, nanpCode)
	}
	if isNationalLength(digits, p.home()) {
		digits = p.home() + digits
	}
	if strings.HasPrefix(digits, brazilCode) && (len(digits) == 12 || len(digits) == 13) {
		return canonicalBrazil(digits)
	}
	if strings.HasPrefix(digits, nanpCode) && len(digits) == 11 {
		return asReceived(digits, nanpCode)
	}
	return asReceived(digits, "")
}

// canonicalBrazil handles 55 + DDD + 8 or 9 subscriber digits. Mobile numbers
// are stored with the ninth digit; the 8-digit variant is still searched.
func canonicalBrazil(digits string) PhoneKey {
	ddd := digits[2:4]
	subscriber := digits[4:]
	key := PhoneKey{CountryCode: brazilCode}

	switch len(subscriber) {
	case 9:
		if subscriber[0] != '9' {
			return asReceived(digits, brazilCode)
		}
		short := brazilCode + ddd + subscriber[1:]
		key.Canonical = digits
		key.Candidates = []string{digits, short}
		key.Type = PhoneMobile
	case 8:
		if isMobileSubscriber(subscriber[0]) {
			long := brazilCode + ddd + "9" + subscriber
			key.Canonical = long
			key.Candidates = []string{long, digits}
			key.Type = PhoneMobile
		} else {
			key.Canonical = digits
			key.Candidates = []string{digits}
			key.Type = PhoneLandline
		}
	}
	key.SearchKey = lastDigits(key.Canonical, searchKeyWidth)
	return key
}

// isNationalLength matches a number typed without country code: 10 digits
// anywhere, or DDD + 9 + 8 digits for Brazil. Only Brazil has an 11-digit
// national form; accepting it elsewhere would re-prefix canonical output.
func isNationalLength(digits, home string) bool {
	switch len(digits) {
	case 10:
		return digits[0] != '0'
	case 11:
		return home == brazilCode && digits[0] != '0' && digits[2] == '9'
	}
	return false
}

// isNANPWithCode detects 1 + NPA + 7 digits. NANP area codes never have 9 as
// their middle digit, which is what separates them from 11-digit Brazilian
// mobiles in DDD 11-19.
func isNANPWithCode(digits string) bool {
	return len(digits) == 11 && digits[0] == '1' && digits[2] != '9'
}

func isMobileSubscriber(first byte) bool {
	return first >= '6' && first <= '9'
}

func asReceived(digits, countryCode string) PhoneKey {
	return PhoneKey{
		Canonical:   digits,
		Candidates:  []string{digits},
		CountryCode: countryCode,
		SearchKey:   lastDigits(digits, searchKeyWidth),
		Type:        PhoneUnknown,
	}
}

func lastDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func onlyDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	digits := onlyDigits(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}
