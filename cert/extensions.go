package cert

import (
	"encoding/asn1"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	cerrors "github.com/webpki/certparse/errors"
	"github.com/webpki/certparse/names"
)

// Extension OIDs decoded by the dispatcher. Anything else is carried in the
// extensions map undecoded, and recorded in UnhandledCriticalOIDs when
// marked critical.
var (
	OIDBasicConstraints       = asn1.ObjectIdentifier{2, 5, 29, 19}
	OIDKeyUsage               = asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDExtendedKeyUsage       = asn1.ObjectIdentifier{2, 5, 29, 37}
	OIDSubjectAltName         = asn1.ObjectIdentifier{2, 5, 29, 17}
	OIDNameConstraints        = asn1.ObjectIdentifier{2, 5, 29, 30}
	OIDCertificatePolicies    = asn1.ObjectIdentifier{2, 5, 29, 32}
	OIDPolicyMappings         = asn1.ObjectIdentifier{2, 5, 29, 33}
	OIDPolicyConstraints      = asn1.ObjectIdentifier{2, 5, 29, 36}
	OIDInhibitAnyPolicy       = asn1.ObjectIdentifier{2, 5, 29, 54}
	OIDAuthorityInfoAccess    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	OIDAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}
	OIDSubjectKeyIdentifier   = asn1.ObjectIdentifier{2, 5, 29, 14}

	// OIDAnyPolicy is the anyPolicy certificate policy, not an extension.
	OIDAnyPolicy = asn1.ObjectIdentifier{2, 5, 29, 32, 0}

	oidAccessOCSP      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1}
	oidAccessCAIssuers = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
)

type extensionHandler func(c *ParsedCertificate, ext Extension, warn func(cerrors.Entry)) error

// extensionHandlers is the single source of truth for which extensions the
// parser understands, keyed by dotted OID.
var extensionHandlers = map[string]extensionHandler{
	OIDBasicConstraints.String():       handleBasicConstraints,
	OIDKeyUsage.String():               handleKeyUsage,
	OIDExtendedKeyUsage.String():       handleExtendedKeyUsage,
	OIDSubjectAltName.String():         handleSubjectAltName,
	OIDNameConstraints.String():        handleNameConstraints,
	OIDCertificatePolicies.String():    handleCertificatePolicies,
	OIDPolicyMappings.String():         handlePolicyMappings,
	OIDPolicyConstraints.String():      handlePolicyConstraints,
	OIDInhibitAnyPolicy.String():       handleInhibitAnyPolicy,
	OIDAuthorityInfoAccess.String():    handleAuthorityInfoAccess,
	OIDAuthorityKeyIdentifier.String(): handleAuthorityKeyIdentifier,
	OIDSubjectKeyIdentifier.String():   handleSubjectKeyIdentifier,
}

// parseExtensions walks the extensions SEQUENCE, fills the extensions map,
// and runs the handler for every OID the dispatcher knows. extSeq is the
// SEQUENCE OF Extension element (tag included).
func (c *ParsedCertificate) parseExtensions(extSeq []byte, warn func(cerrors.Entry)) error {
	input := cryptobyte.String(extSeq)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return cerrors.New(cerrors.Framing, "extensions", "malformed extensions SEQUENCE")
	}
	if seq.Empty() {
		return cerrors.New(cerrors.Semantic, "extensions-empty", "extensions SEQUENCE must not be empty")
	}

	for !seq.Empty() {
		var raw cryptobyte.String
		if !seq.ReadASN1(&raw, cbasn1.SEQUENCE) {
			return cerrors.New(cerrors.Framing, "extension", "malformed Extension")
		}
		var ext Extension
		if !raw.ReadASN1ObjectIdentifier(&ext.ID) {
			return cerrors.New(cerrors.Framing, "extension", "malformed extension OID")
		}
		if raw.PeekASN1Tag(cbasn1.BOOLEAN) && !raw.ReadASN1Boolean(&ext.Critical) {
			return cerrors.New(cerrors.Framing, "extension", "malformed criticality flag for %s", ext.ID)
		}
		var value cryptobyte.String
		if !raw.ReadASN1(&value, cbasn1.OCTET_STRING) || !raw.Empty() {
			return cerrors.New(cerrors.Framing, "extension", "malformed extnValue for %s", ext.ID)
		}
		ext.Value = value

		key := ext.ID.String()
		if _, dup := c.extensions[key]; dup {
			return cerrors.New(cerrors.Semantic, "extension-duplicate", "duplicate extension %s", key)
		}
		c.extensions[key] = ext

		handler, known := extensionHandlers[key]
		if !known {
			if ext.Critical {
				c.unhandledCritical = append(c.unhandledCritical, ext.ID)
			}
			continue
		}
		if err := handler(c, ext, warn); err != nil {
			return err
		}
	}
	return nil
}

// handleBasicConstraints decodes SEQUENCE { cA BOOLEAN DEFAULT FALSE,
// pathLenConstraint INTEGER OPTIONAL }. An explicitly encoded FALSE is
// accepted as received. pathLenConstraint requires cA.
func handleBasicConstraints(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var bc cryptobyte.String
	if !input.ReadASN1(&bc, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "basic-constraints", "malformed BasicConstraints")
	}
	var parsed BasicConstraints
	if bc.PeekASN1Tag(cbasn1.BOOLEAN) && !bc.ReadASN1Boolean(&parsed.IsCA) {
		return cerrors.New(cerrors.Framing, "basic-constraints", "malformed cA BOOLEAN")
	}
	if !bc.Empty() {
		var pathLen int64
		if !bc.ReadASN1Integer(&pathLen) || !bc.Empty() {
			return cerrors.New(cerrors.Framing, "basic-constraints", "malformed pathLenConstraint")
		}
		if pathLen < 0 || pathLen > maxPathLen {
			return cerrors.New(cerrors.Semantic, "basic-constraints", "pathLenConstraint %d out of range", pathLen)
		}
		if !parsed.IsCA {
			return cerrors.New(cerrors.Semantic, "basic-constraints", "pathLenConstraint without cA")
		}
		parsed.HasPathLen = true
		parsed.PathLen = int(pathLen)
	}
	c.hasBasicConstraints = true
	c.basicConstraints = parsed
	return nil
}

// handleKeyUsage decodes the KeyUsage BIT STRING. RFC 5280 defines bits 0
// through 8; the encoding must define at least one bit and no more than
// nine. Trailing zero bits are kept as received.
func handleKeyUsage(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var bits asn1.BitString
	if !input.ReadASN1BitString(&bits) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "key-usage", "malformed KeyUsage BIT STRING")
	}
	if bits.BitLength < 1 || bits.BitLength > 9 {
		return cerrors.New(cerrors.Semantic, "key-usage", "KeyUsage defines %d bits, want 1 through 9", bits.BitLength)
	}
	c.hasKeyUsage = true
	c.keyUsage = bits
	return nil
}

func handleExtendedKeyUsage(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "eku", "malformed ExtKeyUsageSyntax")
	}
	if seq.Empty() {
		return cerrors.New(cerrors.Semantic, "eku", "ExtKeyUsageSyntax must not be empty")
	}
	var purposes []asn1.ObjectIdentifier
	for !seq.Empty() {
		var oid asn1.ObjectIdentifier
		if !seq.ReadASN1ObjectIdentifier(&oid) {
			return cerrors.New(cerrors.Framing, "eku", "malformed KeyPurposeId")
		}
		purposes = append(purposes, oid)
	}
	c.hasExtendedKeyUsage = true
	c.extendedKeyUsage = purposes
	return nil
}

func handleSubjectAltName(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	gn, err := names.ParseGeneralNames(ext.Value)
	if err != nil {
		return cerrors.New(cerrors.Semantic, "san", "parsing SubjectAltName: %s", err)
	}
	c.subjectAltNamesExt = ext
	c.subjectAltNames = gn
	return nil
}

func handleNameConstraints(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	nc, err := names.ParseNameConstraints(ext.Value)
	if err != nil {
		return cerrors.New(cerrors.Semantic, "name-constraints", "parsing NameConstraints: %s", err)
	}
	c.nameConstraints = nc
	return nil
}

// handleCertificatePolicies collects the policy OIDs and discards the
// qualifiers, after checking that any qualifiers SEQUENCE is non-empty and
// each PolicyQualifierInfo opens with an OID.
func handleCertificatePolicies(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "policies", "malformed CertificatePolicies")
	}
	if seq.Empty() {
		return cerrors.New(cerrors.Semantic, "policies", "CertificatePolicies must not be empty")
	}
	var oids []asn1.ObjectIdentifier
	seen := make(map[string]bool)
	for !seq.Empty() {
		var info cryptobyte.String
		if !seq.ReadASN1(&info, cbasn1.SEQUENCE) {
			return cerrors.New(cerrors.Framing, "policies", "malformed PolicyInformation")
		}
		var policy asn1.ObjectIdentifier
		if !info.ReadASN1ObjectIdentifier(&policy) {
			return cerrors.New(cerrors.Framing, "policies", "malformed policy OID")
		}
		if seen[policy.String()] {
			return cerrors.New(cerrors.Semantic, "policies", "duplicate policy %s", policy)
		}
		seen[policy.String()] = true
		if !info.Empty() {
			var qualifiers cryptobyte.String
			if !info.ReadASN1(&qualifiers, cbasn1.SEQUENCE) || !info.Empty() {
				return cerrors.New(cerrors.Framing, "policies", "malformed policyQualifiers for %s", policy)
			}
			if qualifiers.Empty() {
				return cerrors.New(cerrors.Semantic, "policies", "empty policyQualifiers for %s", policy)
			}
			for !qualifiers.Empty() {
				var qualifier cryptobyte.String
				if !qualifiers.ReadASN1(&qualifier, cbasn1.SEQUENCE) {
					return cerrors.New(cerrors.Framing, "policies", "malformed PolicyQualifierInfo")
				}
				var qualifierID asn1.ObjectIdentifier
				if !qualifier.ReadASN1ObjectIdentifier(&qualifierID) {
					return cerrors.New(cerrors.Framing, "policies", "malformed policyQualifierId")
				}
			}
		}
		oids = append(oids, policy)
	}
	c.hasPolicyOIDs = true
	c.policyOIDs = oids
	return nil
}

// handlePolicyMappings decodes the mapping pairs. RFC 5280 forbids
// anyPolicy as either endpoint of a mapping.
func handlePolicyMappings(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "policy-mappings", "malformed PolicyMappings")
	}
	if seq.Empty() {
		return cerrors.New(cerrors.Semantic, "policy-mappings", "PolicyMappings must not be empty")
	}
	var mappings []PolicyMapping
	for !seq.Empty() {
		var pair cryptobyte.String
		var m PolicyMapping
		if !seq.ReadASN1(&pair, cbasn1.SEQUENCE) ||
			!pair.ReadASN1ObjectIdentifier(&m.IssuerDomainPolicy) ||
			!pair.ReadASN1ObjectIdentifier(&m.SubjectDomainPolicy) ||
			!pair.Empty() {
			return cerrors.New(cerrors.Framing, "policy-mappings", "malformed policy mapping pair")
		}
		if m.IssuerDomainPolicy.Equal(OIDAnyPolicy) || m.SubjectDomainPolicy.Equal(OIDAnyPolicy) {
			return cerrors.New(cerrors.Semantic, "policy-mappings", "anyPolicy cannot be mapped")
		}
		mappings = append(mappings, m)
	}
	c.hasPolicyMappings = true
	c.policyMappings = mappings
	return nil
}

// handlePolicyConstraints decodes SEQUENCE { requireExplicitPolicy [0]
// IMPLICIT INTEGER OPTIONAL, inhibitPolicyMapping [1] IMPLICIT INTEGER
// OPTIONAL }. At least one field must be present, and each value must fit
// in a uint8.
func handlePolicyConstraints(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var pc cryptobyte.String
	if !input.ReadASN1(&pc, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "policy-constraints", "malformed PolicyConstraints")
	}
	var parsed PolicyConstraints
	var field cryptobyte.String
	if !pc.ReadOptionalASN1(&field, &parsed.HasRequireExplicitPolicy, cbasn1.Tag(0).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "policy-constraints", "malformed requireExplicitPolicy")
	}
	if parsed.HasRequireExplicitPolicy {
		v, err := uint8FromIntegerContents(field)
		if err != nil {
			return cerrors.New(cerrors.Semantic, "policy-constraints", "requireExplicitPolicy: %s", err)
		}
		parsed.RequireExplicitPolicy = v
	}
	if !pc.ReadOptionalASN1(&field, &parsed.HasInhibitPolicyMapping, cbasn1.Tag(1).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "policy-constraints", "malformed inhibitPolicyMapping")
	}
	if parsed.HasInhibitPolicyMapping {
		v, err := uint8FromIntegerContents(field)
		if err != nil {
			return cerrors.New(cerrors.Semantic, "policy-constraints", "inhibitPolicyMapping: %s", err)
		}
		parsed.InhibitPolicyMapping = v
	}
	if !pc.Empty() {
		return cerrors.New(cerrors.Framing, "policy-constraints", "trailing data inside PolicyConstraints")
	}
	if !parsed.HasRequireExplicitPolicy && !parsed.HasInhibitPolicyMapping {
		return cerrors.New(cerrors.Semantic, "policy-constraints", "PolicyConstraints with neither field")
	}
	c.hasPolicyConstraints = true
	c.policyConstraints = parsed
	return nil
}

func handleInhibitAnyPolicy(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var skipCerts int64
	if !input.ReadASN1Integer(&skipCerts) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "inhibit-any-policy", "malformed InhibitAnyPolicy")
	}
	if skipCerts < 0 || skipCerts > 255 {
		return cerrors.New(cerrors.Semantic, "inhibit-any-policy", "skipCerts %d out of range", skipCerts)
	}
	c.hasInhibitAnyPolicy = true
	c.inhibitAnyPolicy = uint8(skipCerts)
	return nil
}

// handleAuthorityInfoAccess collects caIssuers and OCSP URIs in source
// order. AccessDescriptions with any other method, or whose location is not
// a URI, are skipped with a warning to the sink.
func handleAuthorityInfoAccess(c *ParsedCertificate, ext Extension, warn func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "aia", "malformed AuthorityInfoAccess")
	}
	if seq.Empty() {
		return cerrors.New(cerrors.Semantic, "aia", "AuthorityInfoAccess must not be empty")
	}
	for !seq.Empty() {
		var desc cryptobyte.String
		if !seq.ReadASN1(&desc, cbasn1.SEQUENCE) {
			return cerrors.New(cerrors.Framing, "aia", "malformed AccessDescription")
		}
		var method asn1.ObjectIdentifier
		if !desc.ReadASN1ObjectIdentifier(&method) {
			return cerrors.New(cerrors.Framing, "aia", "malformed accessMethod")
		}
		var location cryptobyte.String
		var locationTag cbasn1.Tag
		if !desc.ReadAnyASN1(&location, &locationTag) || !desc.Empty() {
			return cerrors.New(cerrors.Framing, "aia", "malformed accessLocation")
		}
		isURI := locationTag == cbasn1.Tag(6).ContextSpecific()
		switch {
		case method.Equal(oidAccessCAIssuers) && isURI:
			uri, err := ia5Location(location)
			if err != nil {
				return cerrors.New(cerrors.Semantic, "aia", "caIssuers location: %s", err)
			}
			c.caIssuersURIs = append(c.caIssuersURIs, uri)
		case method.Equal(oidAccessOCSP) && isURI:
			uri, err := ia5Location(location)
			if err != nil {
				return cerrors.New(cerrors.Semantic, "aia", "OCSP location: %s", err)
			}
			c.ocspURIs = append(c.ocspURIs, uri)
		default:
			warn(cerrors.Entry{
				Severity: cerrors.SeverityWarning,
				Kind:     cerrors.Semantic,
				Code:     "aia-entry-skipped",
				Context:  "skipping AccessDescription with method " + method.String(),
			})
		}
	}
	c.hasAuthorityInfoAccess = true
	c.authorityInfoAccessExt = ext
	return nil
}

// handleAuthorityKeyIdentifier decodes SEQUENCE { keyIdentifier [0]
// OPTIONAL, authorityCertIssuer [1] OPTIONAL, authorityCertSerialNumber [2]
// OPTIONAL }. The issuer and serial fields are retained as raw bytes. An
// extension with all three fields absent is still retained.
func handleAuthorityKeyIdentifier(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var aki cryptobyte.String
	if !input.ReadASN1(&aki, cbasn1.SEQUENCE) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "aki", "malformed AuthorityKeyIdentifier")
	}
	var parsed AuthorityKeyIdentifier
	var field cryptobyte.String
	if !aki.ReadOptionalASN1(&field, &parsed.HasKeyIdentifier, cbasn1.Tag(0).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "aki", "malformed keyIdentifier")
	}
	if parsed.HasKeyIdentifier {
		parsed.KeyIdentifier = field
	}
	if !aki.ReadOptionalASN1(&field, &parsed.HasAuthorityCertIssuer, cbasn1.Tag(1).Constructed().ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "aki", "malformed authorityCertIssuer")
	}
	if parsed.HasAuthorityCertIssuer {
		parsed.AuthorityCertIssuer = field
	}
	if !aki.ReadOptionalASN1(&field, &parsed.HasAuthorityCertSerial, cbasn1.Tag(2).ContextSpecific()) {
		return cerrors.New(cerrors.Framing, "aki", "malformed authorityCertSerialNumber")
	}
	if parsed.HasAuthorityCertSerial {
		parsed.AuthorityCertSerial = field
	}
	if !aki.Empty() {
		return cerrors.New(cerrors.Framing, "aki", "trailing data inside AuthorityKeyIdentifier")
	}
	c.authorityKeyIdentifier = &parsed
	return nil
}

func handleSubjectKeyIdentifier(c *ParsedCertificate, ext Extension, _ func(cerrors.Entry)) error {
	input := cryptobyte.String(ext.Value)
	var keyID cryptobyte.String
	if !input.ReadASN1(&keyID, cbasn1.OCTET_STRING) || !input.Empty() {
		return cerrors.New(cerrors.Framing, "ski", "malformed SubjectKeyIdentifier")
	}
	c.hasSubjectKeyIdentifier = true
	c.subjectKeyIdentifier = keyID
	return nil
}

// ia5Location validates the IA5 charset of an implicitly tagged
// uniformResourceIdentifier.
func ia5Location(data []byte) (string, error) {
	for _, b := range data {
		if b >= 0x80 {
			return "", cerrors.New(cerrors.Semantic, "aia", "URI contains non-IA5 byte 0x%02x", b)
		}
	}
	return string(data), nil
}

// uint8FromIntegerContents decodes the contents bytes of an implicitly
// tagged INTEGER that must be non-negative, minimally encoded, and at most
// 255.
func uint8FromIntegerContents(data []byte) (uint8, error) {
	switch {
	case len(data) == 0:
		return 0, cerrors.New(cerrors.Framing, "integer", "empty INTEGER")
	case data[0]&0x80 != 0:
		return 0, cerrors.New(cerrors.Semantic, "integer", "negative value")
	case len(data) == 1:
		return data[0], nil
	case data[0] == 0x00 && data[1]&0x80 != 0 && len(data) == 2:
		return data[1], nil
	case data[0] == 0x00 && data[1]&0x80 == 0:
		return 0, cerrors.New(cerrors.Framing, "integer", "not minimally encoded")
	default:
		return 0, cerrors.New(cerrors.Semantic, "integer", "value out of range")
	}
}
