package entity

import (
	"github.com/awnumar/memguard"
)

// Password is a private-key passphrase. The bytes live in a memguard
// enclave and are only decrypted for the duration of Use. The zero value
// means "no password": the key is stored unencrypted.
type Password struct {
	enclave *memguard.Enclave
}

// NewPassword seals s. An empty string yields the zero Password.
func NewPassword(s string) Password {
	if s == "" {
		return Password{}
	}
	// NewEnclave wipes the slice it is given; []byte(s) is a fresh copy.
	return Password{enclave: memguard.NewEnclave([]byte(s))}
}

// IsSet reports whether a password is present.
func (p Password) IsSet() bool {
	return p.enclave != nil
}

// Use opens the enclave, passes the plaintext to fn and destroys the
// plaintext buffer afterwards. fn must not retain the slice.
func (p Password) Use(fn func(secret []byte) error) error {
	if p.enclave == nil {
		return fn(nil)
	}
	buf, err := p.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Reveal returns a plaintext copy. Only used when the value must cross a
// process or storage boundary.
func (p Password) Reveal() (string, error) {
	var s string
	err := p.Use(func(secret []byte) error {
		s = string(secret)
		return nil
	})
	return s, err
}

// String never prints the secret.
func (p Password) String() string {
	if p.enclave == nil {
		return ""
	}
	return "[REDACTED]"
}

// UnmarshalYAML reads a plain string.
func (p *Password) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*p = NewPassword(s)
	return nil
}
