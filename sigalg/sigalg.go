// Package sigalg parses X.509 AlgorithmIdentifier structures describing
// certificate signature algorithms into flat descriptors. It recognizes the
// algorithms a chain verifier can act on: RSA PKCS#1 v1.5, RSA-PSS, ECDSA,
// and Ed25519. Everything else fails to parse; the caller decides what an
// unrecognized algorithm means for the certificate as a whole.
package sigalg

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Type identifies the signature scheme.
type Type int

const (
	RSAPKCS1 Type = iota
	RSAPSS
	ECDSA
	Ed25519
)

func (t Type) String() string {
	switch t {
	case RSAPKCS1:
		return "RSA PKCS#1 v1.5"
	case RSAPSS:
		return "RSA-PSS"
	case ECDSA:
		return "ECDSA"
	case Ed25519:
		return "Ed25519"
	}
	return "unknown"
}

// Digest identifies the hash used by the signature scheme. Ed25519 signs
// the message directly and reports DigestNone.
type Digest int

const (
	DigestNone Digest = iota
	SHA1
	SHA256
	SHA384
	SHA512
)

func (d Digest) String() string {
	switch d {
	case DigestNone:
		return "none"
	case SHA1:
		return "SHA-1"
	case SHA256:
		return "SHA-256"
	case SHA384:
		return "SHA-384"
	case SHA512:
		return "SHA-512"
	}
	return "unknown"
}

func (d Digest) size() int {
	switch d {
	case SHA1:
		return 20
	case SHA256:
		return 32
	case SHA384:
		return 48
	case SHA512:
		return 64
	}
	return 0
}

// Algorithm is a parsed signature algorithm descriptor.
type Algorithm struct {
	Type   Type
	Digest Digest
}

func (a Algorithm) String() string {
	if a.Type == Ed25519 {
		return a.Type.String()
	}
	return fmt.Sprintf("%s with %s", a.Type, a.Digest)
}

var (
	oidSHA1WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidRSAPSS        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidECDSAWithSHA1 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1}
	oidECDSASHA256   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSASHA384   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSASHA512   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidEd25519       = asn1.ObjectIdentifier{1, 3, 101, 112}

	oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	oidMGF1   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
)

// Parse decodes a DER-encoded AlgorithmIdentifier TLV (outer SEQUENCE tag
// included) into an Algorithm. Trailing bytes after the SEQUENCE are an
// error, as are parameters that contradict the algorithm OID.
func Parse(tlv []byte) (Algorithm, error) {
	input := cryptobyte.String(tlv)
	var ai cryptobyte.String
	if !input.ReadASN1(&ai, cbasn1.SEQUENCE) {
		return Algorithm{}, errors.New("malformed AlgorithmIdentifier")
	}
	if !input.Empty() {
		return Algorithm{}, errors.New("trailing data after AlgorithmIdentifier")
	}
	var oid asn1.ObjectIdentifier
	if !ai.ReadASN1ObjectIdentifier(&oid) {
		return Algorithm{}, errors.New("malformed algorithm OID")
	}
	params, hasParams, err := readParams(&ai)
	if err != nil {
		return Algorithm{}, err
	}

	switch {
	case oid.Equal(oidSHA1WithRSA):
		return rsaPKCS1(SHA1, params, hasParams)
	case oid.Equal(oidSHA256WithRSA):
		return rsaPKCS1(SHA256, params, hasParams)
	case oid.Equal(oidSHA384WithRSA):
		return rsaPKCS1(SHA384, params, hasParams)
	case oid.Equal(oidSHA512WithRSA):
		return rsaPKCS1(SHA512, params, hasParams)
	case oid.Equal(oidRSAPSS):
		if !hasParams {
			return Algorithm{}, errors.New("RSA-PSS requires parameters")
		}
		digest, err := parsePSSParams(params)
		if err != nil {
			return Algorithm{}, err
		}
		return Algorithm{Type: RSAPSS, Digest: digest}, nil
	case oid.Equal(oidECDSAWithSHA1):
		return ecdsa(SHA1, params, hasParams)
	case oid.Equal(oidECDSASHA256):
		return ecdsa(SHA256, params, hasParams)
	case oid.Equal(oidECDSASHA384):
		return ecdsa(SHA384, params, hasParams)
	case oid.Equal(oidECDSASHA512):
		return ecdsa(SHA512, params, hasParams)
	case oid.Equal(oidEd25519):
		if hasParams {
			return Algorithm{}, errors.New("Ed25519 must not have parameters")
		}
		return Algorithm{Type: Ed25519, Digest: DigestNone}, nil
	}
	return Algorithm{}, fmt.Errorf("unrecognized signature algorithm %s", oid)
}

func readParams(ai *cryptobyte.String) ([]byte, bool, error) {
	if ai.Empty() {
		return nil, false, nil
	}
	var params cryptobyte.String
	var tag cbasn1.Tag
	if !ai.ReadAnyASN1Element(&params, &tag) {
		return nil, false, errors.New("malformed algorithm parameters")
	}
	if !ai.Empty() {
		return nil, false, errors.New("trailing data after algorithm parameters")
	}
	return params, true, nil
}

// RFC 4055: parameters for the PKCS#1 v1.5 OIDs SHOULD be NULL; absent is
// tolerated since both forms circulate in real chains.
func rsaPKCS1(digest Digest, params []byte, hasParams bool) (Algorithm, error) {
	if hasParams && !bytes.Equal(params, asn1.NullBytes) {
		return Algorithm{}, errors.New("RSA PKCS#1 v1.5 parameters must be NULL or absent")
	}
	return Algorithm{Type: RSAPKCS1, Digest: digest}, nil
}

// RFC 5758: ECDSA signature OIDs carry no parameters. A NULL is tolerated
// for the same reason as above.
func ecdsa(digest Digest, params []byte, hasParams bool) (Algorithm, error) {
	if hasParams && !bytes.Equal(params, asn1.NullBytes) {
		return Algorithm{}, errors.New("ECDSA parameters must be absent or NULL")
	}
	return Algorithm{Type: ECDSA, Digest: digest}, nil
}

// parsePSSParams accepts only the RSASSA-PSS-params profiles usable for
// certificate signatures: hash in {SHA-256, SHA-384, SHA-512}, MGF1 with
// the same hash, salt length equal to the digest length, trailer field 1.
func parsePSSParams(der []byte) (Digest, error) {
	input := cryptobyte.String(der)
	var params cryptobyte.String
	if !input.ReadASN1(&params, cbasn1.SEQUENCE) {
		return DigestNone, errors.New("malformed RSA-PSS parameters")
	}

	// hashAlgorithm [0] EXPLICIT, DEFAULT sha1. The default is useless for
	// certificates, so absence is an error here.
	var hashWrap cryptobyte.String
	var present bool
	if !params.ReadOptionalASN1(&hashWrap, &present, cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return DigestNone, errors.New("malformed RSA-PSS hashAlgorithm")
	}
	if !present {
		return DigestNone, errors.New("RSA-PSS with default SHA-1 hash is not supported")
	}
	digest, err := parseHashAlgorithm(&hashWrap)
	if err != nil {
		return DigestNone, err
	}

	// maskGenAlgorithm [1] EXPLICIT: must be MGF1 with the same hash.
	var mgfWrap cryptobyte.String
	if !params.ReadOptionalASN1(&mgfWrap, &present, cbasn1.Tag(1).Constructed().ContextSpecific()) {
		return DigestNone, errors.New("malformed RSA-PSS maskGenAlgorithm")
	}
	if !present {
		return DigestNone, errors.New("RSA-PSS with default MGF1-SHA-1 is not supported")
	}
	var mgf cryptobyte.String
	if !mgfWrap.ReadASN1(&mgf, cbasn1.SEQUENCE) {
		return DigestNone, errors.New("malformed RSA-PSS maskGenAlgorithm")
	}
	var mgfOID asn1.ObjectIdentifier
	if !mgf.ReadASN1ObjectIdentifier(&mgfOID) || !mgfOID.Equal(oidMGF1) {
		return DigestNone, errors.New("RSA-PSS mask generation function must be MGF1")
	}
	mgfDigest, err := parseHashAlgorithm(&mgf)
	if err != nil {
		return DigestNone, err
	}
	if mgfDigest != digest {
		return DigestNone, errors.New("RSA-PSS MGF1 hash does not match the message hash")
	}

	// saltLength [2] EXPLICIT, DEFAULT 20: must equal the digest length.
	var salt int64
	var saltWrap cryptobyte.String
	if !params.ReadOptionalASN1(&saltWrap, &present, cbasn1.Tag(2).Constructed().ContextSpecific()) {
		return DigestNone, errors.New("malformed RSA-PSS saltLength")
	}
	if !present {
		return DigestNone, errors.New("RSA-PSS with default salt length is not supported")
	}
	if !saltWrap.ReadASN1Integer(&salt) || !saltWrap.Empty() {
		return DigestNone, errors.New("malformed RSA-PSS saltLength")
	}
	if int(salt) != digest.size() {
		return DigestNone, fmt.Errorf("RSA-PSS salt length %d does not match digest length %d", salt, digest.size())
	}

	// trailerField [3] EXPLICIT, DEFAULT 1: only 1 is defined.
	var trailerWrap cryptobyte.String
	if !params.ReadOptionalASN1(&trailerWrap, &present, cbasn1.Tag(3).Constructed().ContextSpecific()) {
		return DigestNone, errors.New("malformed RSA-PSS trailerField")
	}
	if present {
		var trailer int64
		if !trailerWrap.ReadASN1Integer(&trailer) || !trailerWrap.Empty() || trailer != 1 {
			return DigestNone, errors.New("RSA-PSS trailer field must be 1")
		}
	}

	if !params.Empty() {
		return DigestNone, errors.New("trailing data in RSA-PSS parameters")
	}
	return digest, nil
}

func parseHashAlgorithm(s *cryptobyte.String) (Digest, error) {
	var alg cryptobyte.String
	if !s.ReadASN1(&alg, cbasn1.SEQUENCE) {
		return DigestNone, errors.New("malformed hash AlgorithmIdentifier")
	}
	var oid asn1.ObjectIdentifier
	if !alg.ReadASN1ObjectIdentifier(&oid) {
		return DigestNone, errors.New("malformed hash OID")
	}
	// An explicit NULL after the hash OID is tolerated.
	if !alg.Empty() && !bytes.Equal(alg, asn1.NullBytes) {
		return DigestNone, errors.New("malformed hash parameters")
	}
	switch {
	case oid.Equal(oidSHA256):
		return SHA256, nil
	case oid.Equal(oidSHA384):
		return SHA384, nil
	case oid.Equal(oidSHA512):
		return SHA512, nil
	}
	return DigestNone, fmt.Errorf("unsupported RSA-PSS hash %s", oid)
}
