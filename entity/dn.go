package entity

import (
	"fmt"
	"strings"

	"github.com/jmcleod/sslfixture/internal/util"
)

// shortNames maps long attribute names to the short names the engine
// prints in one-line subjects.
var shortNames = map[string]string{
	"commonName":             "CN",
	"countryName":            "C",
	"localityName":           "L",
	"stateOrProvinceName":    "ST",
	"organizationName":       "O",
	"organizationalUnitName": "OU",
	"domainComponent":        "DC",
	"streetAddress":          "street",
}

// Attribute is a single relative distinguished name component, e.g. CN=localhost.
type Attribute struct {
	Type  string
	Value string
}

// DistinguishedName is an ordered list of subject attributes. Order is
// preserved from the declaration and is significant in rendered output.
type DistinguishedName []Attribute

// ParseDN parses the slash-separated one-line form used by the fixture
// declarations, e.g. "/OU=Localhost1/CN=localhost". Empty segments are
// skipped. Each segment must contain '='; the value is everything after the
// first '='.
func ParseDN(s string) (DistinguishedName, error) {
	var dn DistinguishedName
	for _, part := range strings.Split(s, "/") {
		if part == "" {
			continue
		}
		typ, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("distinguished name %q: segment %q has no '=': %w", s, part, ErrInvalid)
		}
		dn = append(dn, Attribute{Type: strings.TrimSpace(typ), Value: strings.TrimSpace(value)})
	}
	if len(dn) == 0 {
		return nil, fmt.Errorf("distinguished name %q is empty: %w", s, ErrInvalid)
	}
	return dn, nil
}

// MustParseDN is like ParseDN but panics on error. Intended for static
// declarations.
func MustParseDN(s string) DistinguishedName {
	dn, err := ParseDN(s)
	if err != nil {
		panic(err)
	}
	return dn
}

// String returns the one-line slash form.
func (dn DistinguishedName) String() string {
	var b strings.Builder
	for _, a := range dn {
		b.WriteByte('/')
		b.WriteString(a.Type)
		b.WriteByte('=')
		b.WriteString(a.Value)
	}
	return b.String()
}

// Oneline returns dn as the engine records a certificate subject in a CA
// database: short attribute names, NFC values, and every byte outside
// printable ASCII written as \xHH. Revocation compares this text with the
// subject of the certificate being revoked.
func (dn DistinguishedName) Oneline() string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for _, a := range dn {
		typ := a.Type
		if short, ok := shortNames[typ]; ok {
			typ = short
		}
		b.WriteByte('/')
		b.WriteString(typ)
		b.WriteByte('=')
		value := util.Normalize(a.Value)
		for i := 0; i < len(value); i++ {
			c := value[i]
			if c < ' ' || c > '~' {
				b.WriteString(`\x`)
				b.WriteByte(hex[c>>4])
				b.WriteByte(hex[c&0x0f])
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CommonName returns the last CN attribute value, or "".
func (dn DistinguishedName) CommonName() string {
	for i := len(dn) - 1; i >= 0; i-- {
		if strings.EqualFold(dn[i].Type, "CN") {
			return dn[i].Value
		}
	}
	return ""
}

// UnmarshalYAML accepts the slash form as a plain string.
func (dn *DistinguishedName) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDN(s)
	if err != nil {
		return err
	}
	*dn = parsed
	return nil
}

// MarshalYAML emits the slash form.
func (dn DistinguishedName) MarshalYAML() (interface{}, error) {
	return dn.String(), nil
}
