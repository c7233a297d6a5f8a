// Package names handles the name-shaped corners of certificate parsing:
// the GeneralNames structure (subject alternative names and the subtrees
// inside name constraints), the NameConstraints extension, and the
// canonicalization of distinguished names used for issuer/subject matching
// during chain building.
package names

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"net"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Bitmask of GeneralName choices present in a GeneralNames collection.
const (
	TypeOtherName = 1 << iota
	TypeRFC822Name
	TypeDNSName
	TypeX400Address
	TypeDirectoryName
	TypeEDIPartyName
	TypeUniformResourceIdentifier
	TypeIPAddress
	TypeRegisteredID
)

// IPRange is an address plus netmask, the form ipAddress takes inside
// name-constraint subtrees (RFC 5280, section 4.2.1.10).
type IPRange struct {
	Address net.IP
	Mask    net.IPMask
}

// GeneralNames holds the entries of a SEQUENCE OF GeneralName, split by
// choice, each list in source order. Choices the chain engine never
// interprets (otherName, x400Address, ediPartyName, directoryName) are
// carried as raw DER.
type GeneralNames struct {
	OtherNames     [][]byte
	EmailAddresses []string
	DNSNames       []string
	X400Addresses  [][]byte
	DirectoryNames [][]byte
	EDIPartyNames  [][]byte
	URIs           []string
	IPAddresses    []net.IP
	IPRanges       []IPRange
	RegisteredIDs  []asn1.ObjectIdentifier

	// PresentTypes is a bitmask of the Type* constants, one bit per
	// GeneralName choice that appeared at least once.
	PresentTypes int
}

// ipKind selects how an ipAddress entry is interpreted, which depends on
// where the GeneralNames appeared.
type ipKind int

const (
	ipAddressOnly ipKind = iota // SAN and similar: 4 or 16 bytes
	ipAddressAndMask            // name-constraint subtree: 8 or 32 bytes
)

// ParseGeneralNames parses a DER-encoded GeneralNames (outer SEQUENCE tag
// included), as found in the SubjectAltName extension. The SEQUENCE must
// contain at least one name.
func ParseGeneralNames(der []byte) (*GeneralNames, error) {
	return parseGeneralNames(der, ipAddressOnly)
}

func parseGeneralNames(der []byte, kind ipKind) (*GeneralNames, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed GeneralNames")
	}
	if !input.Empty() {
		return nil, errors.New("trailing data after GeneralNames")
	}
	if seq.Empty() {
		return nil, errors.New("GeneralNames must contain at least one name")
	}
	gn := &GeneralNames{}
	for !seq.Empty() {
		var entry cryptobyte.String
		var tag cbasn1.Tag
		if !seq.ReadAnyASN1(&entry, &tag) {
			return nil, errors.New("malformed GeneralName")
		}
		err := gn.addEntry(tag, entry, kind)
		if err != nil {
			return nil, err
		}
	}
	return gn, nil
}

func (gn *GeneralNames) addEntry(tag cbasn1.Tag, data []byte, kind ipKind) error {
	// GeneralName choices are context-specific tags 0 through 8.
	switch tag {
	case cbasn1.Tag(0).Constructed().ContextSpecific(): // otherName SEQUENCE { type-id OID, value [0] EXPLICIT ANY }
		inner := cryptobyte.String(data)
		var typeID asn1.ObjectIdentifier
		if !inner.ReadASN1ObjectIdentifier(&typeID) {
			return errors.New("malformed otherName")
		}
		var value cryptobyte.String
		if !inner.ReadASN1(&value, cbasn1.Tag(0).Constructed().ContextSpecific()) || !inner.Empty() {
			return errors.New("malformed otherName")
		}
		gn.OtherNames = append(gn.OtherNames, data)
		gn.PresentTypes |= TypeOtherName
	case cbasn1.Tag(1).ContextSpecific(): // rfc822Name IA5String
		s, err := ia5String(data, "rfc822Name")
		if err != nil {
			return err
		}
		gn.EmailAddresses = append(gn.EmailAddresses, s)
		gn.PresentTypes |= TypeRFC822Name
	case cbasn1.Tag(2).ContextSpecific(): // dNSName IA5String
		s, err := ia5String(data, "dNSName")
		if err != nil {
			return err
		}
		gn.DNSNames = append(gn.DNSNames, s)
		gn.PresentTypes |= TypeDNSName
	case cbasn1.Tag(3).Constructed().ContextSpecific(): // x400Address, carried raw
		gn.X400Addresses = append(gn.X400Addresses, data)
		gn.PresentTypes |= TypeX400Address
	case cbasn1.Tag(4).Constructed().ContextSpecific(): // directoryName, EXPLICIT Name
		inner := cryptobyte.String(data)
		var name cryptobyte.String
		if !inner.ReadASN1Element(&name, cbasn1.SEQUENCE) || !inner.Empty() {
			return errors.New("malformed directoryName")
		}
		gn.DirectoryNames = append(gn.DirectoryNames, name)
		gn.PresentTypes |= TypeDirectoryName
	case cbasn1.Tag(5).Constructed().ContextSpecific(): // ediPartyName, carried raw
		gn.EDIPartyNames = append(gn.EDIPartyNames, data)
		gn.PresentTypes |= TypeEDIPartyName
	case cbasn1.Tag(6).ContextSpecific(): // uniformResourceIdentifier IA5String
		s, err := ia5String(data, "uniformResourceIdentifier")
		if err != nil {
			return err
		}
		gn.URIs = append(gn.URIs, s)
		gn.PresentTypes |= TypeUniformResourceIdentifier
	case cbasn1.Tag(7).ContextSpecific(): // iPAddress OCTET STRING
		switch kind {
		case ipAddressOnly:
			if len(data) != net.IPv4len && len(data) != net.IPv6len {
				return fmt.Errorf("iPAddress has invalid length %d", len(data))
			}
			ip := make(net.IP, len(data))
			copy(ip, data)
			gn.IPAddresses = append(gn.IPAddresses, ip)
		case ipAddressAndMask:
			if len(data) != 2*net.IPv4len && len(data) != 2*net.IPv6len {
				return fmt.Errorf("iPAddress constraint has invalid length %d", len(data))
			}
			half := len(data) / 2
			r := IPRange{
				Address: make(net.IP, half),
				Mask:    make(net.IPMask, half),
			}
			copy(r.Address, data[:half])
			copy(r.Mask, data[half:])
			gn.IPRanges = append(gn.IPRanges, r)
		}
		gn.PresentTypes |= TypeIPAddress
	case cbasn1.Tag(8).ContextSpecific(): // registeredID OID
		oid, err := parseOIDContents(data)
		if err != nil {
			return errors.New("malformed registeredID")
		}
		gn.RegisteredIDs = append(gn.RegisteredIDs, oid)
		gn.PresentTypes |= TypeRegisteredID
	default:
		return fmt.Errorf("unknown GeneralName tag %d", tag&0x1f)
	}
	return nil
}

func ia5String(data []byte, what string) (string, error) {
	for _, b := range data {
		if b >= 0x80 {
			return "", fmt.Errorf("%s contains non-IA5 byte 0x%02x", what, b)
		}
	}
	return string(data), nil
}

// parseOIDContents decodes OID contents bytes (no tag or length). The
// registeredID choice is an implicitly tagged OID, so the usual tagged
// reader does not apply.
func parseOIDContents(data []byte) (asn1.ObjectIdentifier, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.OBJECT_IDENTIFIER, func(b *cryptobyte.Builder) {
		b.AddBytes(data)
	})
	retagged, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	s := cryptobyte.String(retagged)
	var oid asn1.ObjectIdentifier
	if !s.ReadASN1ObjectIdentifier(&oid) {
		return nil, errors.New("malformed OID")
	}
	return oid, nil
}
