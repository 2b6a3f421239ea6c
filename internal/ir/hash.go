package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for identity hashing.
// Version suffix enables future algorithm migration.
const (
	DomainPerson       = "d1lod/person/v1"
	DomainOrganization = "d1lod/organization/v1"
	DomainDocument     = "d1lod/document/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityHash computes the content-addressed hash of an identity object.
// Empty values are dropped before hashing so that a missing attribute and an
// empty attribute produce the same identity.
func IdentityHash(domain string, fields map[string]string) (string, error) {
	obj := make(map[string]string, len(fields))
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			obj[k] = v
		}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("IdentityHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustIdentityHash is like IdentityHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIdentityHash(domain string, fields map[string]string) string {
	h, err := IdentityHash(domain, fields)
	if err != nil {
		panic(err)
	}
	return h
}

// ContentID computes the cache key of a raw metadata document.
func ContentID(identifier string) string {
	return hashWithDomain(DomainDocument, []byte(norm.NFC.String(identifier)))
}

// Slug turns a display name into a stable IRI local part:
// NFC-normalized, runs of whitespace collapsed to '_', and everything outside
// unreserved characters percent-encoded.
//
//	Slug("NCEAS")                      == "NCEAS"
//	Slug("  University of  Kansas ")   == "University_of_Kansas"
func Slug(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte('_')
		}
		space = false
		b.WriteRune(r)
	}
	return url.PathEscape(b.String())
}
