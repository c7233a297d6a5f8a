// Package cert parses DER-encoded X.509 certificates into immutable
// ParsedCertificate values for use by chain-building and path-validation
// engines. Creating a ParsedCertificate does not completely validate the
// certificate: presence of a field means the DER parsed successfully to
// that level, not that its contents satisfy any issuance policy. Signature
// checking, validity-window checking, and policy evaluation all belong to
// the verifier consuming the parsed object.
package cert

import (
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/webpki/certparse/names"
	"github.com/webpki/certparse/sigalg"
)

// Extension is one entry of the certificate's extensions list: the
// extension OID, the criticality flag, and the inner extnValue bytes (the
// contents of the OCTET STRING wrapper).
type Extension struct {
	ID       asn1.ObjectIdentifier
	Critical bool
	Value    []byte
}

// BasicConstraints is the decoded BasicConstraints extension.
type BasicConstraints struct {
	IsCA       bool
	HasPathLen bool
	PathLen    int
}

// PolicyConstraints is the decoded PolicyConstraints extension. At least
// one of the two fields is present.
type PolicyConstraints struct {
	HasRequireExplicitPolicy bool
	RequireExplicitPolicy    uint8
	HasInhibitPolicyMapping  bool
	InhibitPolicyMapping     uint8
}

// PolicyMapping is one entry of the PolicyMappings extension.
type PolicyMapping struct {
	IssuerDomainPolicy  asn1.ObjectIdentifier
	SubjectDomainPolicy asn1.ObjectIdentifier
}

// AuthorityKeyIdentifier is the decoded AuthorityKeyIdentifier extension.
// Every field is optional; the extension is retained even when all three
// are absent. AuthorityCertIssuer holds raw GeneralNames DER and
// AuthorityCertSerial raw INTEGER contents, since the chain engine only
// ever compares them byte-for-byte.
type AuthorityKeyIdentifier struct {
	HasKeyIdentifier       bool
	KeyIdentifier          []byte
	HasAuthorityCertIssuer bool
	AuthorityCertIssuer    []byte
	HasAuthorityCertSerial bool
	AuthorityCertSerial    []byte
}

// TBSCertificate holds the raw fields of the tbsCertificate. Byte-slice
// fields are views into the certificate's backing buffer.
type TBSCertificate struct {
	// Version is 1, 2, or 3 (the X.509 value plus one). Defaults to 1
	// when the [0] wrapper is absent.
	Version int
	// SerialNumber is the raw INTEGER contents, sign bit as encoded.
	SerialNumber []byte
	// SignatureAlgorithmTLV is the tbsCertificate's inner signature field.
	// The verifier is responsible for comparing it against the outer
	// signatureAlgorithm.
	SignatureAlgorithmTLV []byte
	IssuerTLV             []byte
	NotBefore             time.Time
	NotAfter              time.Time
	SubjectTLV            []byte
	SPKITLV               []byte

	HasIssuerUniqueID  bool
	IssuerUniqueID     asn1.BitString
	HasSubjectUniqueID bool
	SubjectUniqueID    asn1.BitString

	// ExtensionsTLV is the SEQUENCE OF Extension inside the [3] wrapper,
	// nil when the certificate has no extensions.
	ExtensionsTLV []byte
}

// ParsedCertificate is an immutable parsed certificate. It is created by
// Create or CreateAndAppend and never mutated afterward, so any number of
// goroutines may share one without synchronization. Accessors returning
// byte slices return views into the certificate's private backing buffer;
// callers must treat them as read-only.
type ParsedCertificate struct {
	der []byte

	certTLV   []byte
	tbsTLV    []byte
	sigAlgTLV []byte
	sigValue  asn1.BitString

	tbs    TBSCertificate
	sigAlg sigalg.Algorithm

	normalizedIssuer  []byte
	normalizedSubject []byte

	extensions        map[string]Extension
	unhandledCritical []asn1.ObjectIdentifier

	hasBasicConstraints bool
	basicConstraints    BasicConstraints

	hasKeyUsage bool
	keyUsage    asn1.BitString

	hasExtendedKeyUsage bool
	extendedKeyUsage    []asn1.ObjectIdentifier

	subjectAltNamesExt Extension
	subjectAltNames    *names.GeneralNames

	nameConstraints *names.NameConstraints

	hasAuthorityInfoAccess bool
	authorityInfoAccessExt Extension
	caIssuersURIs          []string
	ocspURIs               []string

	hasPolicyOIDs bool
	policyOIDs    []asn1.ObjectIdentifier

	hasPolicyConstraints bool
	policyConstraints    PolicyConstraints

	hasPolicyMappings bool
	policyMappings    []PolicyMapping

	hasInhibitAnyPolicy bool
	inhibitAnyPolicy    uint8

	authorityKeyIdentifier *AuthorityKeyIdentifier

	hasSubjectKeyIdentifier bool
	subjectKeyIdentifier    []byte
}

// Chain is an ordered list of parsed certificates, leaf first by
// convention, though nothing here depends on the ordering.
type Chain []*ParsedCertificate

// DER returns the full DER bytes this certificate was parsed from.
func (c *ParsedCertificate) DER() []byte { return c.der }

// CertificateTLV returns the outer Certificate SEQUENCE. Since trailing
// bytes are rejected at parse time this equals DER().
func (c *ParsedCertificate) CertificateTLV() []byte { return c.certTLV }

// TBSCertificateTLV returns the raw tbsCertificate element, the exact
// bytes a verifier digests when checking the signature.
func (c *ParsedCertificate) TBSCertificateTLV() []byte { return c.tbsTLV }

// SignatureAlgorithmTLV returns the outer signatureAlgorithm element.
func (c *ParsedCertificate) SignatureAlgorithmTLV() []byte { return c.sigAlgTLV }

// SignatureValue returns the outer signatureValue BIT STRING.
func (c *ParsedCertificate) SignatureValue() asn1.BitString { return c.sigValue }

// TBS returns the raw fields of the tbsCertificate.
func (c *ParsedCertificate) TBS() TBSCertificate { return c.tbs }

// SignatureAlgorithm returns the parsed descriptor of the outer
// signatureAlgorithm (not the tbsCertificate's inner signature field).
func (c *ParsedCertificate) SignatureAlgorithm() sigalg.Algorithm { return c.sigAlg }

// SubjectTLV returns the raw subject Name, outer SEQUENCE tag included.
func (c *ParsedCertificate) SubjectTLV() []byte { return c.tbs.SubjectTLV }

// IssuerTLV returns the raw issuer Name, outer SEQUENCE tag included.
func (c *ParsedCertificate) IssuerTLV() []byte { return c.tbs.IssuerTLV }

// NormalizedSubject returns the canonicalized subject DN body (without the
// outer SEQUENCE tag). Chain building compares a child's NormalizedIssuer
// against a candidate parent's NormalizedSubject with plain byte equality.
func (c *ParsedCertificate) NormalizedSubject() []byte { return c.normalizedSubject }

// NormalizedIssuer returns the canonicalized issuer DN body (without the
// outer SEQUENCE tag).
func (c *ParsedCertificate) NormalizedIssuer() []byte { return c.normalizedIssuer }

// HasBasicConstraints reports whether a BasicConstraints extension was
// present.
func (c *ParsedCertificate) HasBasicConstraints() bool { return c.hasBasicConstraints }

// BasicConstraints returns the decoded BasicConstraints extension. Calling
// it when HasBasicConstraints is false is a programmer error and panics.
func (c *ParsedCertificate) BasicConstraints() BasicConstraints {
	c.require(c.hasBasicConstraints, "BasicConstraints")
	return c.basicConstraints
}

// HasKeyUsage reports whether a KeyUsage extension was present.
func (c *ParsedCertificate) HasKeyUsage() bool { return c.hasKeyUsage }

// KeyUsage returns the KeyUsage bits. Panics unless HasKeyUsage.
func (c *ParsedCertificate) KeyUsage() asn1.BitString {
	c.require(c.hasKeyUsage, "KeyUsage")
	return c.keyUsage
}

// HasExtendedKeyUsage reports whether an ExtendedKeyUsage extension was
// present.
func (c *ParsedCertificate) HasExtendedKeyUsage() bool { return c.hasExtendedKeyUsage }

// ExtendedKeyUsage returns the key purpose OIDs in source order. Panics
// unless HasExtendedKeyUsage.
func (c *ParsedCertificate) ExtendedKeyUsage() []asn1.ObjectIdentifier {
	c.require(c.hasExtendedKeyUsage, "ExtendedKeyUsage")
	return c.extendedKeyUsage
}

// HasSubjectAltNames reports whether a SubjectAltName extension was
// present.
func (c *ParsedCertificate) HasSubjectAltNames() bool { return c.subjectAltNames != nil }

// SubjectAltNamesExtension returns the raw SubjectAltName extension, or a
// zero Extension when the certificate had none.
func (c *ParsedCertificate) SubjectAltNamesExtension() Extension { return c.subjectAltNamesExt }

// SubjectAltNames returns the parsed GeneralNames from the SubjectAltName
// extension, or nil when the certificate had none.
func (c *ParsedCertificate) SubjectAltNames() *names.GeneralNames { return c.subjectAltNames }

// HasNameConstraints reports whether a NameConstraints extension was
// present.
func (c *ParsedCertificate) HasNameConstraints() bool { return c.nameConstraints != nil }

// NameConstraints returns the parsed NameConstraints extension. Panics
// unless HasNameConstraints.
func (c *ParsedCertificate) NameConstraints() *names.NameConstraints {
	c.require(c.nameConstraints != nil, "NameConstraints")
	return c.nameConstraints
}

// HasAuthorityInfoAccess reports whether an AuthorityInfoAccess extension
// was present.
func (c *ParsedCertificate) HasAuthorityInfoAccess() bool { return c.hasAuthorityInfoAccess }

// AuthorityInfoAccessExtension returns the raw AuthorityInfoAccess
// extension, or a zero Extension when the certificate had none.
func (c *ParsedCertificate) AuthorityInfoAccessExtension() Extension { return c.authorityInfoAccessExt }

// CAIssuersURIs returns the caIssuers URIs from the AuthorityInfoAccess
// extension, in source order. The extension may have contained other
// AccessDescriptions which are not represented here.
func (c *ParsedCertificate) CAIssuersURIs() []string { return c.caIssuersURIs }

// OCSPURIs returns the OCSP URIs from the AuthorityInfoAccess extension,
// in source order.
func (c *ParsedCertificate) OCSPURIs() []string { return c.ocspURIs }

// HasPolicyOIDs reports whether a CertificatePolicies extension was
// present.
func (c *ParsedCertificate) HasPolicyOIDs() bool { return c.hasPolicyOIDs }

// PolicyOIDs returns the certificate policy OIDs in source order,
// qualifiers discarded. Panics unless HasPolicyOIDs.
func (c *ParsedCertificate) PolicyOIDs() []asn1.ObjectIdentifier {
	c.require(c.hasPolicyOIDs, "PolicyOIDs")
	return c.policyOIDs
}

// HasPolicyConstraints reports whether a PolicyConstraints extension was
// present.
func (c *ParsedCertificate) HasPolicyConstraints() bool { return c.hasPolicyConstraints }

// PolicyConstraints returns the decoded PolicyConstraints extension.
// Panics unless HasPolicyConstraints.
func (c *ParsedCertificate) PolicyConstraints() PolicyConstraints {
	c.require(c.hasPolicyConstraints, "PolicyConstraints")
	return c.policyConstraints
}

// HasPolicyMappings reports whether a PolicyMappings extension was
// present.
func (c *ParsedCertificate) HasPolicyMappings() bool { return c.hasPolicyMappings }

// PolicyMappings returns the policy mapping pairs in source order. Panics
// unless HasPolicyMappings.
func (c *ParsedCertificate) PolicyMappings() []PolicyMapping {
	c.require(c.hasPolicyMappings, "PolicyMappings")
	return c.policyMappings
}

// HasInhibitAnyPolicy reports whether an InhibitAnyPolicy extension was
// present.
func (c *ParsedCertificate) HasInhibitAnyPolicy() bool { return c.hasInhibitAnyPolicy }

// InhibitAnyPolicy returns the skip-certs count. Panics unless
// HasInhibitAnyPolicy.
func (c *ParsedCertificate) InhibitAnyPolicy() uint8 {
	c.require(c.hasInhibitAnyPolicy, "InhibitAnyPolicy")
	return c.inhibitAnyPolicy
}

// AuthorityKeyIdentifier returns the decoded AuthorityKeyIdentifier
// extension, or nil when the certificate had none.
func (c *ParsedCertificate) AuthorityKeyIdentifier() *AuthorityKeyIdentifier {
	return c.authorityKeyIdentifier
}

// HasSubjectKeyIdentifier reports whether a SubjectKeyIdentifier extension
// was present.
func (c *ParsedCertificate) HasSubjectKeyIdentifier() bool { return c.hasSubjectKeyIdentifier }

// SubjectKeyIdentifier returns the key identifier octets, possibly empty.
// Panics unless HasSubjectKeyIdentifier.
func (c *ParsedCertificate) SubjectKeyIdentifier() []byte {
	c.require(c.hasSubjectKeyIdentifier, "SubjectKeyIdentifier")
	return c.subjectKeyIdentifier
}

// Extensions returns the map of every extension in the certificate, keyed
// by dotted OID. The map is shared, not copied; callers must not modify
// it.
func (c *ParsedCertificate) Extensions() map[string]Extension { return c.extensions }

// GetExtension looks up an extension by OID, decoded or not.
func (c *ParsedCertificate) GetExtension(oid asn1.ObjectIdentifier) (Extension, bool) {
	ext, ok := c.extensions[oid.String()]
	return ext, ok
}

// UnhandledCriticalOIDs returns the OIDs of critical extensions that no
// handler decoded, in source order. Path validation must reject a
// certificate whose unhandled-critical list is non-empty; recording them
// here is as far as parsing goes.
func (c *ParsedCertificate) UnhandledCriticalOIDs() []asn1.ObjectIdentifier {
	return c.unhandledCritical
}

func (c *ParsedCertificate) require(ok bool, accessor string) {
	if !ok {
		panic(fmt.Sprintf("cert: %s called on a certificate without that extension", accessor))
	}
}
