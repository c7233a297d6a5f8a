package cert

import (
	"bytes"
	"encoding/asn1"
	"math"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	cerrors "github.com/webpki/certparse/errors"
	"github.com/webpki/certparse/names"
	"github.com/webpki/certparse/sigalg"
)

// ParseOptions adjusts which malformed inputs Create tolerates.
type ParseOptions struct {
	// AllowInvalidSerialNumbers waives the 20-octet cap on serial numbers.
	// The serial must still be a structurally valid DER INTEGER.
	AllowInvalidSerialNumbers bool
}

// Create parses der into a ParsedCertificate. On failure it returns nil and,
// when errs is non-nil, describes every problem found to the sink. A
// non-nil return means the certificate parsed completely: shell, TBS, both
// names normalized, and every known extension decoded. It does not mean the
// certificate is trustworthy; see the package comment.
//
// The input bytes are copied, so the caller may reuse its buffer.
func Create(der []byte, opts ParseOptions, errs cerrors.Sink) *ParsedCertificate {
	warn := func(e cerrors.Entry) {
		if errs != nil {
			errs.Add(e)
		}
	}
	c, err := parse(der, opts, warn)
	if err != nil {
		if errs != nil {
			errs.Add(cerrors.EntryFromError(err))
		}
		return nil
	}
	return c
}

// CreateAndAppend parses der and, on success, appends the result to chain.
// On failure chain is left untouched. Returns whether the append happened.
func CreateAndAppend(der []byte, opts ParseOptions, chain *Chain, errs cerrors.Sink) bool {
	c := Create(der, opts, errs)
	if c == nil {
		return false
	}
	*chain = append(*chain, c)
	return true
}

func parse(der []byte, opts ParseOptions, warn func(cerrors.Entry)) (*ParsedCertificate, error) {
	c := &ParsedCertificate{der: bytes.Clone(der)}

	// Certificate ::= SEQUENCE {
	//   tbsCertificate     TBSCertificate,
	//   signatureAlgorithm AlgorithmIdentifier,
	//   signatureValue     BIT STRING }
	input := cryptobyte.String(c.der)
	var certTLV cryptobyte.String
	if !input.ReadASN1Element(&certTLV, cbasn1.SEQUENCE) {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "malformed outer Certificate SEQUENCE")
	}
	if !input.Empty() {
		return nil, cerrors.New(cerrors.Framing, "trailing-data", "trailing data after Certificate")
	}
	c.certTLV = certTLV

	var cert cryptobyte.String
	if !certTLV.ReadASN1(&cert, cbasn1.SEQUENCE) {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "malformed outer Certificate SEQUENCE")
	}
	var tbsTLV cryptobyte.String
	if !cert.ReadASN1Element(&tbsTLV, cbasn1.SEQUENCE) {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "malformed tbsCertificate")
	}
	c.tbsTLV = tbsTLV
	var sigAlgTLV cryptobyte.String
	if !cert.ReadASN1Element(&sigAlgTLV, cbasn1.SEQUENCE) {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "malformed signatureAlgorithm")
	}
	c.sigAlgTLV = sigAlgTLV
	if !cert.ReadASN1BitString(&c.sigValue) {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "malformed signatureValue")
	}
	if !cert.Empty() {
		return nil, cerrors.New(cerrors.Framing, "cert-shell", "trailing data inside Certificate")
	}

	alg, err := sigalg.Parse(c.sigAlgTLV)
	if err != nil {
		return nil, cerrors.New(cerrors.Algorithm, "signature-algorithm", "parsing signatureAlgorithm: %s", err)
	}
	c.sigAlg = alg

	if err := c.parseTBS(opts, warn); err != nil {
		return nil, err
	}

	c.normalizedIssuer, err = names.NormalizeName(c.tbs.IssuerTLV)
	if err != nil {
		return nil, cerrors.New(cerrors.Normalization, "issuer", "normalizing issuer: %s", err)
	}
	c.normalizedSubject, err = names.NormalizeName(c.tbs.SubjectTLV)
	if err != nil {
		return nil, cerrors.New(cerrors.Normalization, "subject", "normalizing subject: %s", err)
	}

	c.extensions = make(map[string]Extension)
	if c.tbs.ExtensionsTLV != nil {
		if err := c.parseExtensions(c.tbs.ExtensionsTLV, warn); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ParsedCertificate) parseTBS(opts ParseOptions, warn func(cerrors.Entry)) error {
	input := cryptobyte.String(c.tbsTLV)
	var tbs cryptobyte.String
	if !input.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "tbs", "malformed tbsCertificate")
	}

	// version [0] EXPLICIT INTEGER DEFAULT v1(0). The wrapper itself is
	// permitted even for an encoded v1.
	var versionWrapper cryptobyte.String
	var hasVersion bool
	if !tbs.ReadOptionalASN1(&versionWrapper, &hasVersion, cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "version", "malformed version wrapper")
	}
	c.tbs.Version = 1
	if hasVersion {
		var version int64
		if !versionWrapper.ReadASN1Integer(&version) || !versionWrapper.Empty() {
			return cerrors.New(cerrors.Framing, "version", "malformed version INTEGER")
		}
		if version < 0 || version > 2 {
			return cerrors.New(cerrors.Unsupported, "version", "unsupported certificate version %d", version)
		}
		c.tbs.Version = int(version) + 1
	}

	var serial cryptobyte.String
	if !tbs.ReadASN1(&serial, cbasn1.INTEGER) {
		return cerrors.New(cerrors.Framing, "serial", "malformed serialNumber")
	}
	if err := checkSerial(serial, opts, warn); err != nil {
		return err
	}
	c.tbs.SerialNumber = serial

	var innerAlg cryptobyte.String
	if !tbs.ReadASN1Element(&innerAlg, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "tbs-signature", "malformed signature AlgorithmIdentifier")
	}
	c.tbs.SignatureAlgorithmTLV = innerAlg

	var issuer cryptobyte.String
	if !tbs.ReadASN1Element(&issuer, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "issuer", "malformed issuer Name")
	}
	c.tbs.IssuerTLV = issuer

	var validity cryptobyte.String
	if !tbs.ReadASN1(&validity, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "validity", "malformed Validity")
	}
	var err error
	if c.tbs.NotBefore, err = readTime(&validity, "notBefore"); err != nil {
		return err
	}
	if c.tbs.NotAfter, err = readTime(&validity, "notAfter"); err != nil {
		return err
	}
	if !validity.Empty() {
		return cerrors.New(cerrors.Framing, "validity", "trailing data inside Validity")
	}

	var subject cryptobyte.String
	if !tbs.ReadASN1Element(&subject, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "subject", "malformed subject Name")
	}
	c.tbs.SubjectTLV = subject

	var spki cryptobyte.String
	if !tbs.ReadASN1Element(&spki, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "spki", "malformed subjectPublicKeyInfo")
	}
	c.tbs.SPKITLV = spki

	// issuerUniqueID [1] and subjectUniqueID [2] are IMPLICIT BIT STRINGs,
	// so the tagged contents are the BIT STRING contents.
	var uid cryptobyte.String
	if !tbs.ReadOptionalASN1(&uid, &c.tbs.HasIssuerUniqueID, cbasn1.Tag(1).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "issuer-unique-id", "malformed issuerUniqueID")
	}
	if c.tbs.HasIssuerUniqueID {
		if c.tbs.IssuerUniqueID, err = bitStringFromContents(uid); err != nil {
			return cerrors.New(cerrors.Framing, "issuer-unique-id", "malformed issuerUniqueID: %s", err)
		}
	}
	if !tbs.ReadOptionalASN1(&uid, &c.tbs.HasSubjectUniqueID, cbasn1.Tag(2).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "subject-unique-id", "malformed subjectUniqueID")
	}
	if c.tbs.HasSubjectUniqueID {
		if c.tbs.SubjectUniqueID, err = bitStringFromContents(uid); err != nil {
			return cerrors.New(cerrors.Framing, "subject-unique-id", "malformed subjectUniqueID: %s", err)
		}
	}
	if (c.tbs.HasIssuerUniqueID || c.tbs.HasSubjectUniqueID) && c.tbs.Version < 2 {
		return cerrors.New(cerrors.Semantic, "unique-id-version", "unique identifiers require version 2 or 3, got %d", c.tbs.Version)
	}

	var extWrapper cryptobyte.String
	var hasExtensions bool
	if !tbs.ReadOptionalASN1(&extWrapper, &hasExtensions, cbasn1.Tag(3).Constructed().ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "extensions", "malformed extensions wrapper")
	}
	if hasExtensions {
		if c.tbs.Version != 3 {
			return cerrors.New(cerrors.Semantic, "extensions-version", "extensions require version 3, got %d", c.tbs.Version)
		}
		var extSeq cryptobyte.String
		if !extWrapper.ReadASN1Element(&extSeq, cbasn1.SEQUENCE) || !extWrapper.Empty() {
			return cerrors.New(cerrors.Framing, "extensions", "malformed extensions SEQUENCE")
		}
		c.tbs.ExtensionsTLV = extSeq
	}

	if !tbs.Empty() {
		return cerrors.New(cerrors.Framing, "tbs", "trailing data inside tbsCertificate")
	}
	return nil
}

// checkSerial enforces the serialNumber rules: a structurally valid DER
// INTEGER of at most 20 octets (the cap is waived by
// AllowInvalidSerialNumbers). A negative serial is reported to the sink as
// a warning but does not fail construction.
func checkSerial(serial []byte, opts ParseOptions, warn func(cerrors.Entry)) error {
	if len(serial) == 0 {
		return cerrors.New(cerrors.Framing, "serial", "empty serialNumber")
	}
	if len(serial) > 1 && ((serial[0] == 0x00 && serial[1]&0x80 == 0) ||
		(serial[0] == 0xff && serial[1]&0x80 == 0x80)) {
		return cerrors.New(cerrors.Framing, "serial", "serialNumber is not minimally encoded")
	}
	if serial[0]&0x80 != 0 {
		warn(cerrors.Entry{
			Severity: cerrors.SeverityWarning,
			Kind:     cerrors.Semantic,
			Code:     "serial-negative",
			Context:  "serialNumber is negative",
		})
	}
	if len(serial) > 20 && !opts.AllowInvalidSerialNumbers {
		return cerrors.New(cerrors.Unsupported, "serial-too-long", "serialNumber is %d octets, maximum is 20", len(serial))
	}
	return nil
}

// readTime reads one Validity field, either UTCTime (two-digit year, 2050
// pivot) or GeneralizedTime. Both readers reject encodings that do not
// round-trip.
func readTime(s *cryptobyte.String, what string) (time.Time, error) {
	var t time.Time
	switch {
	case s.PeekASN1Tag(cbasn1.UTCTime):
		if !s.ReadASN1UTCTime(&t) {
			return t, cerrors.New(cerrors.Framing, "validity", "malformed UTCTime in %s", what)
		}
	case s.PeekASN1Tag(cbasn1.GeneralizedTime):
		if !s.ReadASN1GeneralizedTime(&t) {
			return t, cerrors.New(cerrors.Framing, "validity", "malformed GeneralizedTime in %s", what)
		}
	default:
		return t, cerrors.New(cerrors.Framing, "validity", "%s is neither UTCTime nor GeneralizedTime", what)
	}
	return t.UTC(), nil
}

// bitStringFromContents decodes BIT STRING contents that arrived without
// their tag, as the implicitly tagged unique identifiers do.
func bitStringFromContents(data []byte) (asn1.BitString, error) {
	var bs asn1.BitString
	if len(data) == 0 {
		return bs, cerrors.New(cerrors.Framing, "bit-string", "empty BIT STRING")
	}
	pad := int(data[0])
	body := data[1:]
	if pad > 7 || (len(body) == 0 && pad != 0) {
		return bs, cerrors.New(cerrors.Framing, "bit-string", "invalid padding count %d", pad)
	}
	if pad > 0 && body[len(body)-1]&(1<<pad-1) != 0 {
		return bs, cerrors.New(cerrors.Framing, "bit-string", "padding bits are not zero")
	}
	bs.Bytes = body
	bs.BitLength = len(body)*8 - pad
	return bs, nil
}

// maxPathLen bounds the BasicConstraints pathLenConstraint.
const maxPathLen = math.MaxInt32
