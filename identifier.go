package courierauth

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/MrEthical07/courierauth/internal"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
	maxEmailLength = 254
)

// NormalizeIdentifier canonicalizes raw for typ. When typ is empty the type
// is inferred: anything containing '@' is an email, everything else a phone
// number.
//
// Phones drop spaces, dashes, dots, parentheses and a leading '+', and must
// then be 7 to 15 digits. Emails are trimmed and lower-cased and must hold
// exactly one '@' with text on both sides. IPs are parsed and re-rendered.
func NormalizeIdentifier(raw string, typ IdentifierType) (string, IdentifierType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if typ == "" {
		typ = IdentifierPhone
		if strings.Contains(raw, "@") {
			typ = IdentifierEmail
		}
	}

	switch typ {
	case IdentifierPhone:
		phone := strings.TrimPrefix(strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '.', '(', ')':
				return -1
			}
			return r
		}, raw), "+")
		if len(phone) < minPhoneDigits || len(phone) > maxPhoneDigits || !internal.IsDigits(phone) {
			return "", "", fmt.Errorf("%w: phone must be %d-%d digits", ErrInvalidIdentifier, minPhoneDigits, maxPhoneDigits)
		}
		return phone, typ, nil

	case IdentifierEmail:
		email := strings.ToLower(raw)
		at := strings.IndexByte(email, '@')
		if len(email) > maxEmailLength || at <= 0 || at == len(email)-1 ||
			strings.Count(email, "@") != 1 || strings.ContainsAny(email, " \t\r\n") {
			return "", "", fmt.Errorf("%w: malformed email", ErrInvalidIdentifier)
		}
		return email, typ, nil

	case IdentifierIP:
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return "", "", fmt.Errorf("%w: malformed ip", ErrInvalidIdentifier)
		}
		return addr.Unmap().String(), typ, nil

	default:
		return "", "", fmt.Errorf("%w: unknown identifier type %q", ErrInvalidIdentifier, typ)
	}
}

// ParsePurpose validates p against the known OTP purposes.
func ParsePurpose(p string) (Purpose, error) {
	switch purpose := Purpose(strings.ToLower(strings.TrimSpace(p))); purpose {
	case PurposeSignup, PurposeLogin, PurposePasswordReset, PurposePhoneChange, PurposeEmailChange:
		return purpose, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, p)
	}
}

// ParseRole validates r against the known roles.
func ParseRole(r string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(r))); role {
	case RoleCustomer, RoleMerchant, RoleRider, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, r)
	}
}

// validateSubject enforces the store binding: merchants carry a store id,
// nobody else does.
func validateSubject(s Subject) (Subject, error) {
	s.UserID = strings.TrimSpace(s.UserID)
	s.StoreID = strings.TrimSpace(s.StoreID)
	if s.UserID == "" {
		return s, fmt.Errorf("%w: user id required", ErrInvalidRequest)
	}
	role, err := ParseRole(string(s.Role))
	if err != nil {
		return s, err
	}
	s.Role = role

	switch {
	case role == RoleMerchant && s.StoreID == "":
		return s, fmt.Errorf("%w: merchant requires store id", ErrInvalidRole)
	case role != RoleMerchant && s.StoreID != "":
		return s, fmt.Errorf("%w: store id only valid for merchant", ErrInvalidRole)
	}
	return s, nil
}

func channelFor(typ IdentifierType) string {
	if typ == IdentifierEmail {
		return "email"
	}
	return "sms"
}
