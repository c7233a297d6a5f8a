package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/webpki/certparse/test"
)

var (
	oidCommonName      = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECPublicKey     = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidP256            = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}

	// The CT poison OID, a critical extension nothing here decodes.
	oidCTPoison = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 3}
)

type rawExt struct {
	oid      asn1.ObjectIdentifier
	critical bool
	value    []byte
}

// certSpec describes a hand-assembled certificate. The builder gives the
// tests full control over the degenerate shapes (bad serials, stray
// versions, duplicate extensions) that no certificate library will emit.
// Signatures are garbage; nothing in this package verifies them.
type certSpec struct {
	version         []byte // contents of the [0] wrapper; nil omits the wrapper
	serial          []byte // raw INTEGER contents
	algID           []byte // full AlgorithmIdentifier TLV; nil for ECDSA-SHA256
	issuer          []byte // full Name TLV; nil for the default
	subject         []byte
	notBefore       []byte // full time TLV
	notAfter        []byte
	issuerUniqueID  []byte // raw BIT STRING contents (padding byte included)
	subjectUniqueID []byte
	extensions      []rawExt
	emptyExtensions bool // emit [3] holding an empty SEQUENCE
}

func defaultSpec() certSpec {
	return certSpec{
		serial:    []byte{0x01},
		notBefore: utcTimeTLV("260101000000Z"),
		notAfter:  utcTimeTLV("270101000000Z"),
	}
}

// versionTLV returns the INTEGER that goes inside the [0] wrapper for the
// given X.509 version value (0, 1, or 2 for v1, v2, v3).
func versionTLV(v int64) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1Int64(v)
	return b.BytesOrPanic()
}

func utcTimeTLV(s string) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.UTCTime, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
	return b.BytesOrPanic()
}

func generalizedTimeTLV(s string) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.GeneralizedTime, func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
	return b.BytesOrPanic()
}

func testAlgID() []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oidECDSAWithSHA256)
	})
	return b.BytesOrPanic()
}

func rsaSHA256AlgID() []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11})
		b.AddASN1NULL()
	})
	return b.BytesOrPanic()
}

func testName(cn string) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidCommonName)
				b.AddASN1(cbasn1.UTF8String, func(b *cryptobyte.Builder) {
					b.AddBytes([]byte(cn))
				})
			})
		})
	})
	return b.BytesOrPanic()
}

// testSPKI builds a structurally plausible subjectPublicKeyInfo. The key
// bytes are nonsense; the parser keeps the element raw.
func testSPKI() []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidECPublicKey)
			b.AddASN1ObjectIdentifier(oidP256)
		})
		b.AddASN1BitString([]byte{0x04, 0x01, 0x02, 0x03})
	})
	return b.BytesOrPanic()
}

func buildTBS(spec certSpec) []byte {
	algID := spec.algID
	if algID == nil {
		algID = testAlgID()
	}
	issuer := spec.issuer
	if issuer == nil {
		issuer = testName("Parse Test Root")
	}
	subject := spec.subject
	if subject == nil {
		subject = testName("Parse Test Root")
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if spec.version != nil {
			b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes(spec.version)
			})
		}
		b.AddASN1(cbasn1.INTEGER, func(b *cryptobyte.Builder) {
			b.AddBytes(spec.serial)
		})
		b.AddBytes(algID)
		b.AddBytes(issuer)
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddBytes(spec.notBefore)
			b.AddBytes(spec.notAfter)
		})
		b.AddBytes(subject)
		b.AddBytes(testSPKI())
		if spec.issuerUniqueID != nil {
			b.AddASN1(cbasn1.Tag(1).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes(spec.issuerUniqueID)
			})
		}
		if spec.subjectUniqueID != nil {
			b.AddASN1(cbasn1.Tag(2).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes(spec.subjectUniqueID)
			})
		}
		if spec.extensions != nil || spec.emptyExtensions {
			b.AddASN1(cbasn1.Tag(3).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					for _, e := range spec.extensions {
						b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
							b.AddASN1ObjectIdentifier(e.oid)
							if e.critical {
								b.AddASN1Boolean(true)
							}
							b.AddASN1(cbasn1.OCTET_STRING, func(b *cryptobyte.Builder) {
								b.AddBytes(e.value)
							})
						})
					}
				})
			})
		}
	})
	return b.BytesOrPanic()
}

func buildRawCert(t *testing.T, spec certSpec) []byte {
	t.Helper()
	algID := spec.algID
	if algID == nil {
		algID = testAlgID()
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(buildTBS(spec))
		b.AddBytes(algID)
		b.AddASN1BitString([]byte{0xde, 0xad, 0xbe, 0xef})
	})
	der, err := b.Bytes()
	test.AssertNotError(t, err, "assembling certificate")
	return der
}

// v3Cert builds a version 3 certificate carrying the given extensions.
func v3Cert(t *testing.T, exts ...rawExt) []byte {
	t.Helper()
	spec := defaultSpec()
	spec.version = versionTLV(2)
	spec.extensions = exts
	return buildRawCert(t, spec)
}

// fixtureClock returns a fake clock pinned inside the fixture validity
// windows, for templates that derive their dates from "now".
func fixtureClock() clock.FakeClock {
	fc := clock.NewFake()
	fc.Set(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	return fc
}

// issueSelfSigned runs the template through crypto/x509 with a throwaway
// P-256 key, producing a realistic, well-formed certificate.
func issueSelfSigned(t *testing.T, tmpl *x509.Certificate) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.AssertNotError(t, err, "generating fixture key")
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	test.AssertNotError(t, err, "issuing fixture certificate")
	return der
}

func caTemplate(fc clock.Clock) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(0x0102030405),
		Subject:               pkix.Name{CommonName: "happy hacker fake CA"},
		NotBefore:             fc.Now().Add(-24 * time.Hour).Truncate(time.Second),
		NotAfter:              fc.Now().Add(365 * 24 * time.Hour).Truncate(time.Second),
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"ca.example.com"},
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}
}
