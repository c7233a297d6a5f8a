package cert

import (
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	cerrors "github.com/webpki/certparse/errors"
	"github.com/webpki/certparse/names"
	"github.com/webpki/certparse/sigalg"
	"github.com/webpki/certparse/test"
)

func TestCreateWellFormed(t *testing.T) {
	fc := fixtureClock()
	tmpl := caTemplate(fc)
	der := issueSelfSigned(t, tmpl)

	var errs cerrors.Collector
	c := Create(der, ParseOptions{}, &errs)
	test.Assert(t, c != nil, "Create failed on a well-formed certificate")
	test.AssertEquals(t, len(errs.Entries()), 0)

	test.AssertByteEquals(t, c.DER(), der)
	test.AssertByteEquals(t, c.CertificateTLV(), der)
	test.AssertEquals(t, c.TBS().Version, 3)
	test.AssertByteEquals(t, c.TBS().SerialNumber, tmpl.SerialNumber.Bytes())
	test.Assert(t, c.TBS().NotBefore.Equal(tmpl.NotBefore), "wrong notBefore")
	test.Assert(t, c.TBS().NotAfter.Equal(tmpl.NotAfter), "wrong notAfter")

	test.AssertEquals(t, c.SignatureAlgorithm().Type, sigalg.ECDSA)
	test.AssertEquals(t, c.SignatureAlgorithm().Digest, sigalg.SHA256)

	// Self-signed, so the canonical issuer and subject match.
	test.AssertByteEquals(t, c.NormalizedIssuer(), c.NormalizedSubject())

	test.Assert(t, c.HasBasicConstraints(), "BasicConstraints missing")
	bc := c.BasicConstraints()
	test.Assert(t, bc.IsCA, "cA bit missing")
	test.Assert(t, bc.HasPathLen, "pathLenConstraint missing")
	test.AssertEquals(t, bc.PathLen, 1)

	// keyCertSign is bit 5, cRLSign bit 6.
	test.Assert(t, c.HasKeyUsage(), "KeyUsage missing")
	test.AssertEquals(t, c.KeyUsage().At(5), 1)
	test.AssertEquals(t, c.KeyUsage().At(6), 1)
	test.AssertEquals(t, c.KeyUsage().At(0), 0)

	test.Assert(t, c.HasExtendedKeyUsage(), "ExtendedKeyUsage missing")
	test.AssertEquals(t, len(c.ExtendedKeyUsage()), 1)
	test.AssertEquals(t, c.ExtendedKeyUsage()[0].String(), "1.3.6.1.5.5.7.3.1")

	test.Assert(t, c.HasSubjectAltNames(), "SubjectAltName missing")
	test.AssertDeepEquals(t, c.SubjectAltNames().DNSNames, []string{"ca.example.com"})

	test.Assert(t, c.HasSubjectKeyIdentifier(), "SubjectKeyIdentifier missing")
	test.AssertByteEquals(t, c.SubjectKeyIdentifier(), []byte{1, 2, 3, 4})

	test.AssertEquals(t, len(c.UnhandledCriticalOIDs()), 0)

	_, ok := c.GetExtension(OIDBasicConstraints)
	test.Assert(t, ok, "GetExtension failed to find BasicConstraints")
	_, ok = c.GetExtension(OIDNameConstraints)
	test.Assert(t, !ok, "GetExtension found an extension that is not there")
}

func TestCreateMinimalV1Leaf(t *testing.T) {
	// The smallest interesting certificate: v1, RSA with SHA-256, one-RDN
	// names that differ only in case.
	spec := defaultSpec()
	spec.algID = rsaSHA256AlgID()
	spec.issuer = testName("A")
	spec.subject = testName("a")

	var errs cerrors.Collector
	c := Create(buildRawCert(t, spec), ParseOptions{}, &errs)
	test.Assert(t, c != nil, "Create failed")
	test.AssertEquals(t, len(errs.Entries()), 0)

	test.AssertEquals(t, c.TBS().Version, 1)
	test.AssertEquals(t, c.SignatureAlgorithm().Type, sigalg.RSAPKCS1)
	test.AssertEquals(t, c.SignatureAlgorithm().Digest, sigalg.SHA256)
	test.Assert(t, !c.HasBasicConstraints(), "phantom BasicConstraints")
	test.AssertEquals(t, len(c.Extensions()), 0)

	// Case folding makes CN="A" and CN="a" the same canonical name, which
	// is the whole point of keeping normalized forms around.
	test.AssertByteEquals(t, c.NormalizedIssuer(), c.NormalizedSubject())
	// The stored form is the Name body: the SET, without the outer
	// SEQUENCE wrapper.
	want, err := names.NormalizeName(testName("a"))
	test.AssertNotError(t, err, "NormalizeName")
	test.AssertByteEquals(t, c.NormalizedSubject(), want)
}

func TestFramingRoundTrip(t *testing.T) {
	// The three captured elements, re-wrapped in a SEQUENCE, reproduce the
	// input exactly.
	der := buildRawCert(t, defaultSpec())
	c := Create(der, ParseOptions{}, nil)
	test.Assert(t, c != nil, "Create failed")

	body := append([]byte{}, c.TBSCertificateTLV()...)
	body = append(body, c.SignatureAlgorithmTLV()...)
	sig := mustDER(func(b *cryptobyte.Builder) {
		b.AddASN1BitString(c.SignatureValue().Bytes)
	})
	body = append(body, sig...)

	rebuilt := mustDER(func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddBytes(body)
		})
	})
	test.AssertByteEquals(t, rebuilt, der)
	test.AssertByteEquals(t, c.CertificateTLV(), der)
}

func TestCreateCopiesInput(t *testing.T) {
	der := buildRawCert(t, defaultSpec())
	input := make([]byte, len(der))
	copy(input, der)

	c := Create(input, ParseOptions{}, nil)
	test.Assert(t, c != nil, "Create failed")
	for i := range input {
		input[i] = 0xaa
	}
	test.AssertByteEquals(t, c.DER(), der)
}

func TestCreateTrailingData(t *testing.T) {
	der := append(buildRawCert(t, defaultSpec()), 0x00)
	var errs cerrors.Collector
	c := Create(der, ParseOptions{}, &errs)
	test.Assert(t, c == nil, "Create accepted trailing data")
	entries := errs.Entries()
	test.AssertEquals(t, len(entries), 1)
	test.AssertEquals(t, entries[0].Kind, cerrors.Framing)
	test.AssertEquals(t, entries[0].Code, "trailing-data")
}

func TestCreateNilSink(t *testing.T) {
	// A nil sink is legal, on success and on failure.
	test.Assert(t, Create(buildRawCert(t, defaultSpec()), ParseOptions{}, nil) != nil, "Create failed")
	test.Assert(t, Create([]byte{0x30, 0x00}, ParseOptions{}, nil) == nil, "Create accepted garbage")
}

func TestCreateVersions(t *testing.T) {
	for _, tc := range []struct {
		name    string
		version []byte // contents of the [0] wrapper, nil to omit
		want    int
	}{
		{"no wrapper means v1", nil, 1},
		{"explicit v1 accepted", versionTLV(0), 1},
		{"v2", versionTLV(1), 2},
		{"v3", versionTLV(2), 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec := defaultSpec()
			spec.version = tc.version
			c := Create(buildRawCert(t, spec), ParseOptions{}, nil)
			test.Assert(t, c != nil, "Create failed")
			test.AssertEquals(t, c.TBS().Version, tc.want)
		})
	}
}

func TestCreateVersionRejected(t *testing.T) {
	spec := defaultSpec()
	spec.version = versionTLV(3)
	var errs cerrors.Collector
	c := Create(buildRawCert(t, spec), ParseOptions{}, &errs)
	test.Assert(t, c == nil, "Create accepted version 4")
	test.AssertEquals(t, errs.Entries()[0].Kind, cerrors.Unsupported)
}

func TestCreateExtensionsRequireV3(t *testing.T) {
	// Extensions on a v1 certificate.
	spec := defaultSpec()
	spec.extensions = []rawExt{{oid: OIDSubjectKeyIdentifier, value: extSKI([]byte{9})}}
	var errs cerrors.Collector
	c := Create(buildRawCert(t, spec), ParseOptions{}, &errs)
	test.Assert(t, c == nil, "Create accepted extensions on v1")
	test.AssertEquals(t, errs.Entries()[0].Kind, cerrors.Semantic)
	test.AssertEquals(t, errs.Entries()[0].Code, "extensions-version")
}

func TestCreateEmptyExtensions(t *testing.T) {
	spec := defaultSpec()
	spec.version = versionTLV(2)
	spec.emptyExtensions = true
	var errs cerrors.Collector
	c := Create(buildRawCert(t, spec), ParseOptions{}, &errs)
	test.Assert(t, c == nil, "Create accepted an empty extensions SEQUENCE")
	test.AssertEquals(t, errs.Entries()[0].Code, "extensions-empty")
}

func TestCreateV3WithoutExtensions(t *testing.T) {
	// The converse of invariant "extensions imply v3" does not hold: a v3
	// certificate with no extensions list is fine.
	spec := defaultSpec()
	spec.version = versionTLV(2)
	c := Create(buildRawCert(t, spec), ParseOptions{}, nil)
	test.Assert(t, c != nil, "Create rejected v3 without extensions")
	test.Assert(t, c.TBS().ExtensionsTLV == nil, "phantom extensions")
}

func TestSerialNumbers(t *testing.T) {
	longSerial := make([]byte, 21)
	longSerial[0] = 0x01

	for _, tc := range []struct {
		name     string
		serial   []byte
		opts     ParseOptions
		ok       bool
		wantKind cerrors.Kind
		wantWarn string
	}{
		{name: "single byte", serial: []byte{0x01}, ok: true},
		{name: "zero", serial: []byte{0x00}, ok: true},
		{name: "twenty bytes", serial: append([]byte{0x7f}, make([]byte, 19)...), ok: true},
		{name: "empty", serial: []byte{}, ok: false, wantKind: cerrors.Framing},
		{name: "non-minimal", serial: []byte{0x00, 0x01}, ok: false, wantKind: cerrors.Framing},
		{name: "negative warns", serial: []byte{0xff}, ok: true, wantWarn: "serial-negative"},
		{name: "too long", serial: longSerial, ok: false, wantKind: cerrors.Unsupported},
		{name: "too long with option", serial: longSerial, opts: ParseOptions{AllowInvalidSerialNumbers: true}, ok: true},
		{
			name:   "option does not waive INTEGER validity",
			serial: append([]byte{0x00, 0x01}, make([]byte, 19)...),
			opts:   ParseOptions{AllowInvalidSerialNumbers: true},
			ok:     false, wantKind: cerrors.Framing,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec := defaultSpec()
			spec.serial = tc.serial
			var errs cerrors.Collector
			c := Create(buildRawCert(t, spec), tc.opts, &errs)
			if tc.ok {
				test.Assert(t, c != nil, "Create failed")
				test.AssertByteEquals(t, c.TBS().SerialNumber, tc.serial)
			} else {
				test.Assert(t, c == nil, "Create accepted a bad serial")
				test.AssertEquals(t, errs.Entries()[0].Kind, tc.wantKind)
			}
			if tc.wantWarn != "" {
				warnings := errs.Warnings()
				test.AssertEquals(t, len(warnings), 1)
				test.AssertEquals(t, warnings[0].Code, tc.wantWarn)
			}
		})
	}
}

func TestUniqueIDs(t *testing.T) {
	spec := defaultSpec()
	spec.version = versionTLV(1)
	spec.issuerUniqueID = []byte{0x00, 0xaa}
	spec.subjectUniqueID = []byte{0x04, 0xb0} // 4 padding bits, all zero

	c := Create(buildRawCert(t, spec), ParseOptions{}, nil)
	test.Assert(t, c != nil, "Create failed")
	test.Assert(t, c.TBS().HasIssuerUniqueID, "issuerUniqueID missing")
	test.AssertEquals(t, c.TBS().IssuerUniqueID.BitLength, 8)
	test.AssertByteEquals(t, c.TBS().IssuerUniqueID.Bytes, []byte{0xaa})
	test.Assert(t, c.TBS().HasSubjectUniqueID, "subjectUniqueID missing")
	test.AssertEquals(t, c.TBS().SubjectUniqueID.BitLength, 4)
}

func TestUniqueIDsRejected(t *testing.T) {
	for _, tc := range []struct {
		name string
		spec func() certSpec
		code string
	}{
		{
			"v1 forbids unique IDs",
			func() certSpec {
				spec := defaultSpec()
				spec.issuerUniqueID = []byte{0x00, 0xaa}
				return spec
			},
			"unique-id-version",
		},
		{
			"nonzero padding bits",
			func() certSpec {
				spec := defaultSpec()
				spec.version = versionTLV(1)
				spec.issuerUniqueID = []byte{0x04, 0xb1}
				return spec
			},
			"issuer-unique-id",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var errs cerrors.Collector
			c := Create(buildRawCert(t, tc.spec()), ParseOptions{}, &errs)
			test.Assert(t, c == nil, "Create accepted a bad unique ID")
			test.AssertEquals(t, errs.Entries()[0].Code, tc.code)
		})
	}
}

func TestValidityForms(t *testing.T) {
	for _, tc := range []struct {
		name      string
		notBefore []byte
		want      time.Time
	}{
		{
			"UTCTime before the pivot",
			utcTimeTLV("491231235959Z"),
			time.Date(2049, time.December, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			"UTCTime at the pivot wraps to 1950",
			utcTimeTLV("500101000000Z"),
			time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"GeneralizedTime",
			generalizedTimeTLV("20500101000000Z"),
			time.Date(2050, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec := defaultSpec()
			spec.notBefore = tc.notBefore
			c := Create(buildRawCert(t, spec), ParseOptions{}, nil)
			test.Assert(t, c != nil, "Create failed")
			test.Assert(t, c.TBS().NotBefore.Equal(tc.want), "wrong decoded time")
		})
	}
}

func TestValidityRejected(t *testing.T) {
	for _, tc := range []struct {
		name      string
		notBefore []byte
	}{
		{"wrong tag", []byte{0x02, 0x01, 0x00}},
		{"truncated UTCTime", utcTimeTLV("2601")},
		{"impossible date", utcTimeTLV("260230000000Z")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec := defaultSpec()
			spec.notBefore = tc.notBefore
			var errs cerrors.Collector
			c := Create(buildRawCert(t, spec), ParseOptions{}, &errs)
			test.Assert(t, c == nil, "Create accepted a bad validity")
			test.AssertEquals(t, errs.Entries()[0].Code, "validity")
		})
	}
}

func TestCreateAndAppend(t *testing.T) {
	var chain Chain

	ok := CreateAndAppend(buildRawCert(t, defaultSpec()), ParseOptions{}, &chain, nil)
	test.Assert(t, ok, "CreateAndAppend failed on a good certificate")
	test.AssertEquals(t, len(chain), 1)

	// A failed parse leaves the chain untouched.
	ok = CreateAndAppend([]byte{0x30, 0x00}, ParseOptions{}, &chain, nil)
	test.Assert(t, !ok, "CreateAndAppend accepted garbage")
	test.AssertEquals(t, len(chain), 1)

	ok = CreateAndAppend(issueSelfSigned(t, caTemplate(fixtureClock())), ParseOptions{}, &chain, nil)
	test.Assert(t, ok, "CreateAndAppend failed on a good certificate")
	test.AssertEquals(t, len(chain), 2)
}

func TestSerialRoundTripsThroughBigInt(t *testing.T) {
	fc := fixtureClock()
	tmpl := caTemplate(fc)
	tmpl.SerialNumber = big.NewInt(0).SetBytes([]byte{0x7f, 0xee, 0xdd, 0xcc, 0xbb, 0xaa})
	c := Create(issueSelfSigned(t, tmpl), ParseOptions{}, nil)
	test.Assert(t, c != nil, "Create failed")
	test.AssertEquals(t, big.NewInt(0).SetBytes(c.TBS().SerialNumber).Cmp(tmpl.SerialNumber), 0)
}
