// Package render turns an entity descriptor into the PKI engine's
// declarative config file. Output is a pure function of the descriptor:
// identical input always yields identical bytes.
package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/internal/util"
)

// Policy constants shared with the engine invocations.
const (
	DefaultCRLDays   = 30
	ExtensionSection = "ext"

	caSection       = "CA_default"
	crlSection      = "crl_ext"
	reqDNSection    = "req_distinguished_name"
	altNamesSection = "alt_names"
)

// Entry is a single "key = value" line.
type Entry struct {
	Key   string
	Value string
}

// Section is a named, ordered group of entries.
type Section struct {
	Name    string
	Entries []Entry
}

// Set appends an entry and returns s for chaining.
func (s *Section) Set(key, value string) *Section {
	s.Entries = append(s.Entries, Entry{Key: key, Value: value})
	return s
}

// Document is an ordered list of sections.
type Document struct {
	Sections []*Section
}

// Section appends a new section named name and returns it.
func (d *Document) Section(name string) *Section {
	s := &Section{Name: name}
	d.Sections = append(d.Sections, s)
	return s
}

// Lookup returns the first section called name.
func (d *Document) Lookup(name string) (*Section, bool) {
	for _, s := range d.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Bytes serialises the document. Every line, including the last, ends in
// a newline.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	for _, s := range d.Sections {
		fmt.Fprintf(&buf, "[ %s ]\n", s.Name)
		for _, e := range s.Entries {
			fmt.Fprintf(&buf, "%s = %s\n", e.Key, e.Value)
		}
	}
	return buf.Bytes()
}

// Build assembles the config document for d. The descriptor is assumed to
// have passed entity.Descriptor.Validate; values are not escaped.
func Build(d entity.Descriptor) *Document {
	paths := d.Paths()
	doc := &Document{}

	doc.Section("ca").Set("default_ca", caSection)
	doc.Section(caSection).
		Set("database", paths.Index).
		Set("crlnumber", paths.CRLNumber).
		Set("crl_extensions", crlSection).
		Set("default_md", "default").
		Set("default_crl_days", strconv.Itoa(DefaultCRLDays)).
		Set("unique_subject", "no")
	// A crlnumber file or CRL extensions make the engine emit a v2 CRL.
	doc.Section(crlSection).Set("authorityKeyIdentifier", "keyid:always")

	doc.Section("req").
		Set("x509_extensions", ExtensionSection).
		Set("distinguished_name", reqDNSection).
		Set("prompt", "no").
		Set("utf8", "yes").
		Set("string_mask", "utf8only")

	dn := doc.Section(reqDNSection)
	for _, a := range d.DN {
		dn.Set(a.Type, util.Normalize(a.Value))
	}

	ext := doc.Section(ExtensionSection)
	if d.IsRoot() {
		ext.Set("basicConstraints", "CA:TRUE").
			Set("subjectKeyIdentifier", "hash")
	} else {
		ext.Set("basicConstraints", "CA:FALSE")
	}
	if len(d.AltNames) > 0 {
		ext.Set("subjectAltName", "@"+altNamesSection)
		alt := doc.Section(altNamesSection)
		for i, name := range d.AltNames {
			alt.Set("DNS."+strconv.Itoa(i+1), name)
		}
	}
	return doc
}

// Config renders d's engine config text.
func Config(d entity.Descriptor) []byte {
	return Build(d).Bytes()
}
