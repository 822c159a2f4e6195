package entity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var (
	nameRe          = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	attributeTypeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.]*$`)
)

// configSignificant are characters that would change the meaning of the
// one-line subject form or the engine config file if they appeared in an
// attribute value: separators (including the multi-valued RDN '+'), line
// breaks, the config comment start, variable expansion, escapes and quotes.
// Values containing them are rejected rather than escaped.
const configSignificant = "/=+\n\r\x00#$\\\""

// Validate checks d for caller contract violations before anything touches
// the filesystem. The returned error wraps ErrInvalid.
func (d Descriptor) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Match(nameRe), validation.NotIn(".", "..")),
		validation.Field(&d.DN, validation.Required, validation.By(validateDN)),
		validation.Field(&d.Signer, validation.When(d.Signer != "",
			validation.Match(nameRe),
			validation.NotIn(d.Name).Error("an entity cannot sign itself"),
		)),
		validation.Field(&d.Encoding, validation.In(Legacy, PKCS8)),
		validation.Field(&d.AltNames, validation.Each(validation.Required, validation.By(validateAltName))),
	)
	if err != nil {
		return fmt.Errorf("entity %q: %v: %w", d.Name, err, ErrInvalid)
	}
	return nil
}

func validateDN(value interface{}) error {
	dn, _ := value.(DistinguishedName)
	for _, a := range dn {
		if !attributeTypeRe.MatchString(a.Type) {
			return fmt.Errorf("attribute type %q is not a valid identifier", a.Type)
		}
		if a.Value == "" {
			return fmt.Errorf("attribute %s has an empty value", a.Type)
		}
		if strings.ContainsAny(a.Value, configSignificant) {
			return fmt.Errorf("attribute %s value %q contains a reserved character (one of / = + # $ \\ \" newline NUL)", a.Type, a.Value)
		}
	}
	return nil
}

func validateAltName(value interface{}) error {
	name, _ := value.(string)
	// A single leading wildcard label is allowed.
	host := strings.TrimPrefix(name, "*.")
	if err := is.DNSName.Validate(host); err != nil {
		return errors.New("must be a valid DNS name")
	}
	return nil
}
