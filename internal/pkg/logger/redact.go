package logger

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// redactPIIValue masks contact identifiers in a logged value. Keys naming an
// email or phone are masked whole; any other value has embedded addresses
// masked, since primary-key values and attribute dumps can carry them.
func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email") || strings.Contains(key, "key_value"):
		if strings.Contains(val, "@") {
			return maskAddress(val)
		}
	case strings.Contains(key, "phone"):
		return maskDigits(val)
	}
	return addressPattern.ReplaceAllStringFunc(val, maskAddress)
}

// maskAddress keeps two characters of the local part and the domain:
// "john.doe@example.com" becomes "jo***@example.com". Local parts of two
// characters or fewer are masked whole.
func maskAddress(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return "***@***"
	}
	local, domain := addr[:at], addr[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// maskDigits keeps the last two characters of a phone number.
func maskDigits(val string) string {
	if len(val) <= 2 {
		return "**"
	}
	return strings.Repeat("*", len(val)-2) + val[len(val)-2:]
}
