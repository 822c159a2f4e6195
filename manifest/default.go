package manifest

import "github.com/jmcleod/sslfixture/entity"

// Default is the stock fixture set: three independent roots, leaves
// covering every key container under ca, one leaf under fake_ca, with
// localhost2 revoked and ca's CRL published.
func Default() *Manifest {
	leaf := func(name, dn, signer, password string, enc entity.KeyEncoding) entity.Descriptor {
		return entity.Descriptor{
			Name:     name,
			DN:       entity.MustParseDN(dn),
			Signer:   signer,
			Password: entity.NewPassword(password),
			Encoding: enc,
		}
	}
	root := func(name, dn string) entity.Descriptor {
		return entity.Descriptor{Name: name, DN: entity.MustParseDN(dn)}
	}

	return &Manifest{
		Entities: []entity.Descriptor{
			root("ca", "/CN=EasySSL CA"),
			root("another_ca", "/CN=EasySSL Another CA"),
			root("fake_ca", "/CN=EasySSL Fake CA"),
			leaf("localhost1", "/OU=Localhost1/CN=localhost", "ca", "localhost1-password", entity.Legacy),
			leaf("localhost2", "/OU=Localhost2/CN=localhost", "ca", "localhost2-password", entity.PKCS8),
			leaf("fake_localhost1", "/OU=Fake Localhost1/CN=localhost", "fake_ca", "", entity.Legacy),
			leaf("ECEncryptedPKCS8", "/CN=ECEncryptedPKCS8", "ca", "ECEncryptedPKCS8", entity.PKCS8),
			leaf("ECEncryptedOpenSsl", "/CN=ECEncryptedOpenSsl", "ca", "ECEncryptedOpenSsl", entity.Legacy),
			leaf("ECPlainPKCS8", "/CN=ECPlainPKCS8", "ca", "", entity.PKCS8),
			leaf("ECPlainOpenSsl", "/CN=ECPlainOpenSsl", "ca", "", entity.Legacy),
		},
		Revocations: []Revocation{{Signer: "ca", Target: "localhost2"}},
		CRLs:        []string{"ca"},
	}
}
