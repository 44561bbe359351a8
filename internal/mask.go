package internal

import "strings"

// MaskIdentifier hides most of a phone number or email address for logs.
//
//	2348000000000     -> 2348*****0000
//	ada@example.com   -> a**@example.com
func MaskIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}
	if at := strings.LastIndexByte(identifier, '@'); at > 0 {
		local, domain := identifier[:at], identifier[at:]
		if len(local) <= 1 {
			return "*" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + domain
	}
	if len(identifier) <= 8 {
		return strings.Repeat("*", len(identifier))
	}
	return identifier[:4] + strings.Repeat("*", len(identifier)-8) + identifier[len(identifier)-4:]
}
