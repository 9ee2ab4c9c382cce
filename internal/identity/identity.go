// Package identity turns gateway addresses into the phone and label keys
// contacts are matched on.
package identity

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"
)

// ErrUnaddressable means the address yields neither a valid phone nor a label.
var ErrUnaddressable = errors.New("address has no usable phone or label")

type AddressType int

const (
	AddressUnknown AddressType = iota
	AddressPhone
	AddressLabel
	AddressGroup
)

const (
	suffixPhone       = "@s.whatsapp.net"
	suffixLegacyPhone = "@c.us"
	suffixLabel       = "@lid"
	suffixGroup       = "@g.us"
	suffixBroadcast   = "@broadcast"
	suffixNewsletter  = "@newsletter"
	statusBroadcast   = "status@broadcast"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// Classify reports what kind of address jid is. Bare tokens without a suffix
// are treated as phones.
func Classify(jid string) AddressType {
	jid = strings.ToLower(strings.TrimSpace(jid))
	switch {
	case jid == "":
		return AddressUnknown
	case jid == statusBroadcast,
		strings.HasSuffix(jid, suffixGroup),
		strings.HasSuffix(jid, suffixBroadcast),
		strings.HasSuffix(jid, suffixNewsletter):
		return AddressGroup
	case strings.HasSuffix(jid, suffixLabel):
		return AddressLabel
	default:
		return AddressPhone
	}
}

// IsGroupOrBroadcast reports addresses that never map to a single contact.
func IsGroupOrBroadcast(jid string) bool {
	return Classify(jid) == AddressGroup
}

// Token strips the domain suffix and any device part ("5511...:12@s.whatsapp.net").
func Token(jid string) string {
	jid = strings.TrimSpace(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return jid
}

func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether raw has between 8 and 15 digits once separators
// are removed. Letters make it invalid.
func ValidPhone(raw string) bool {
	for _, r := range raw {
		if unicode.IsLetter(r) {
			return false
		}
	}
	d := Digits(raw)
	return len(d) >= minPhoneDigits && len(d) <= maxPhoneDigits
}

// NormalizePhone returns the digits of raw with countryCode prepended to
// national numbers of 10 or 11 digits. Applying it twice yields the same value.
func NormalizePhone(raw, countryCode string) string {
	d := Digits(raw)
	n := len(d)
	hasPrefix := countryCode != "" && strings.HasPrefix(d, countryCode)
	switch {
	case (n == 10 || n == 11) && !hasPrefix:
		return countryCode + d
	default:
		return d
	}
}

// StripCountryCode returns phone without the leading countryCode, or phone
// itself when it does not carry it.
func StripCountryCode(phone, countryCode string) string {
	if countryCode == "" || !strings.HasPrefix(phone, countryCode) {
		return phone
	}
	return phone[len(countryCode):]
}

type Identity struct {
	Phone string
	Label string
}

type Resolver struct {
	CountryCode string
	Log         *slog.Logger
}

func NewResolver(countryCode string) *Resolver {
	return &Resolver{CountryCode: countryCode}
}

// Resolve extracts the normalized phone and the label from a primary address
// and an optional alternate one. A label-only identity is valid. An invalid
// primary phone makes the address unusable; an invalid alternate phone next to
// a label is dropped and the label kept.
func (r *Resolver) Resolve(remoteJID, altJID string) (Identity, error) {
	var id Identity

	switch Classify(remoteJID) {
	case AddressLabel:
		id.Label = Token(remoteJID)
		if Classify(altJID) == AddressPhone {
			if alt := Token(altJID); ValidPhone(alt) {
				id.Phone = NormalizePhone(alt, r.CountryCode)
			} else {
				r.logger().Info("alternate phone ignored", slog.String("label", id.Label), slog.String("alt_jid", altJID))
			}
		}
	case AddressPhone:
		raw := Token(remoteJID)
		if !ValidPhone(raw) {
			return Identity{}, ErrUnaddressable
		}
		id.Phone = NormalizePhone(raw, r.CountryCode)
		if Classify(altJID) == AddressLabel {
			id.Label = Token(altJID)
		}
	default:
		return Identity{}, ErrUnaddressable
	}

	if id.Phone == "" && id.Label == "" {
		return Identity{}, ErrUnaddressable
	}
	return id, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
