// Package manifest loads the declarative description of a fixture PKI: the
// ordered entity list plus the revocations and CRLs to produce afterwards.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
	"gopkg.in/yaml.v2"

	"github.com/jmcleod/sslfixture/entity"
)

// Revocation asks Signer to revoke Target.
type Revocation struct {
	Signer string `yaml:"signer"`
	Target string `yaml:"target"`
}

func (r Revocation) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Signer, validation.Required),
		validation.Field(&r.Target, validation.Required),
	)
}

// Manifest is an ordered fixture declaration. Entities are issued in the
// order given, then Revocations are applied in order, then a CRL is issued
// for each name in CRLs.
type Manifest struct {
	Entities    []entity.Descriptor `yaml:"entities"`
	Revocations []Revocation        `yaml:"revocations,omitempty"`
	CRLs        []string            `yaml:"crls,omitempty"`
}

// FromFile reads the manifest at path. The file is first executed as a
// text/template over the process environment, so values such as passwords
// can be written as {{ .LOCALHOST1_PASSWORD }}; $VAR references are
// expanded afterwards.
func FromFile(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(raw, environ())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse renders data against env and decodes the result.
func Parse(data []byte, env map[string]string) (*Manifest, error) {
	t, err := template.New("manifest").Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, env); err != nil {
		return nil, err
	}
	content := os.Expand(buf.String(), func(key string) string { return env[key] })

	var m Manifest
	if err := yaml.UnmarshalStrict([]byte(content), &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}

// Validate checks every descriptor, that names are unique and that
// revocations and CRLs only name declared certificate authorities.
func (m *Manifest) Validate() error {
	if err := validation.ValidateStruct(m,
		validation.Field(&m.Entities, validation.Required),
		validation.Field(&m.Revocations),
	); err != nil {
		return err
	}

	byName := lo.KeyBy(m.Entities, func(d entity.Descriptor) string { return d.Name })
	if dups := lo.FindDuplicates(m.Names()); len(dups) > 0 {
		return &entity.DuplicateEntityError{Name: dups[0]}
	}

	var errs []error
	isCA := func(name string) bool {
		d, ok := byName[name]
		return ok && d.IsRoot()
	}
	for _, r := range m.Revocations {
		if !isCA(r.Signer) {
			errs = append(errs, fmt.Errorf("revocation of %q: signer %q is not a declared certificate authority: %w", r.Target, r.Signer, entity.ErrInvalid))
		}
		if _, ok := byName[r.Target]; !ok {
			errs = append(errs, &entity.UnknownEntityError{Name: r.Target})
		}
	}
	for _, name := range m.CRLs {
		if !isCA(name) {
			errs = append(errs, fmt.Errorf("crl: %q is not a declared certificate authority: %w", name, entity.ErrInvalid))
		}
	}
	return errors.Join(errs...)
}

// Names returns the entity names in declaration order.
func (m *Manifest) Names() []string {
	return lo.Map(m.Entities, func(d entity.Descriptor, _ int) string { return d.Name })
}

// Marshal renders m as YAML. Passwords are written in plain text.
func (m *Manifest) Marshal() ([]byte, error) {
	out := yamlManifest{Revocations: m.Revocations, CRLs: m.CRLs}
	for _, d := range m.Entities {
		pw, err := d.Password.Reveal()
		if err != nil {
			return nil, err
		}
		out.Entities = append(out.Entities, yamlDescriptor{
			Name:     d.Name,
			DN:       d.DN.String(),
			Signer:   d.Signer,
			Password: pw,
			Encoding: encodingName(d.Encoding),
			AltNames: d.AltNames,
		})
	}
	return yaml.Marshal(out)
}

type yamlManifest struct {
	Entities    []yamlDescriptor `yaml:"entities"`
	Revocations []Revocation     `yaml:"revocations,omitempty"`
	CRLs        []string         `yaml:"crls,omitempty"`
}

type yamlDescriptor struct {
	Name     string   `yaml:"name"`
	DN       string   `yaml:"dn"`
	Signer   string   `yaml:"signer,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Encoding string   `yaml:"encoding,omitempty"`
	AltNames []string `yaml:"alt_names,omitempty"`
}

func encodingName(e entity.KeyEncoding) string {
	if e == entity.Legacy {
		return ""
	}
	return e.String()
}
