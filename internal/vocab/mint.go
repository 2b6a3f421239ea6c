package vocab

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/d1lod/internal/ir"
)

// ErrUnidentifiable is returned for records that lack every identifying
// attribute of their kind.
var ErrUnidentifiable = errors.New("record has no identifying attributes")

// EntityURI mints the deterministic URI of a record. The same identifying
// attributes always produce the same URI, so repeated runs and concurrent
// workers converge on one subject.
func EntityURI(rec ir.Record) (ir.IRI, error) {
	switch rec.Kind {
	case ir.KindOrganization:
		return OrganizationURI(rec)
	case ir.KindPerson:
		return PersonURI(rec)
	case ir.KindDataset:
		return DatasetURI(rec.Get(ir.AttrIdentifier))
	default:
		return "", fmt.Errorf("mint uri: unknown record type %q", rec.Kind)
	}
}

// OrganizationURI mints d1org:<ror id> when a ROR is known, else d1org:<slug(name)>.
func OrganizationURI(rec ir.Record) (ir.IRI, error) {
	if ror := BareROR(rec.Get(ir.AttrROR)); ror != "" {
		return ir.IRI(NamespaceOrg + url.PathEscape(ror)), nil
	}
	name := rec.Get(ir.AttrName)
	if name == "" {
		return "", fmt.Errorf("mint organization uri: %w", ErrUnidentifiable)
	}
	return ir.IRI(NamespaceOrg + ir.Slug(name)), nil
}

// PersonURI mints d1people:<orcid> when an ORCID is known. Otherwise the
// local part is slug(name) plus a short identity hash over the name and the
// strongest disambiguator available (email, else organization).
func PersonURI(rec ir.Record) (ir.IRI, error) {
	if orcid := BareORCID(rec.Get(ir.AttrORCID)); orcid != "" {
		return ir.IRI(NamespacePeople + orcid), nil
	}
	name := rec.Get(ir.AttrName)
	if name == "" {
		return "", fmt.Errorf("mint person uri: %w", ErrUnidentifiable)
	}
	identity := map[string]string{"name": name}
	if email := rec.Get(ir.AttrEmail); email != "" {
		identity["email"] = strings.ToLower(email)
	} else {
		identity["organization"] = rec.Get(ir.AttrOrganization)
	}
	h, err := ir.IdentityHash(ir.DomainPerson, identity)
	if err != nil {
		return "", fmt.Errorf("mint person uri: %w", err)
	}
	return ir.IRI(NamespacePeople + ir.Slug(name) + "-" + h[:12]), nil
}

// DatasetURI mints d1resolve:<escaped identifier>.
func DatasetURI(identifier string) (ir.IRI, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", fmt.Errorf("mint dataset uri: %w", ErrUnidentifiable)
	}
	return ir.IRI(NamespaceResolve + url.PathEscape(identifier)), nil
}

// BareORCID strips the orcid.org URL form down to the 16-digit identifier.
func BareORCID(orcid string) string {
	return lastSegment(strings.TrimSpace(orcid))
}

// BareROR strips the ror.org URL form down to the nine-character identifier.
func BareROR(ror string) string {
	return lastSegment(strings.TrimSpace(ror))
}

func lastSegment(s string) string {
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
