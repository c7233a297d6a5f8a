package names

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
)

// Directory-string tags handled by the normalizer. cryptobyte's asn1
// package only names the common ones.
const (
	tagNumericString   = cbasn1.Tag(18)
	tagT61String       = cbasn1.Tag(20)
	tagUniversalString = cbasn1.Tag(28)
	tagBMPString       = cbasn1.Tag(30)
)

// NormalizeName converts a DER-encoded Name (outer SEQUENCE tag included)
// into the canonical byte form used for issuer/subject equality during
// chain building. The output reproduces the RDN structure with every
// foldable directory string rewritten: decoded to Unicode, case-folded,
// whitespace-collapsed, and re-encoded as UTF8String. IA5String and
// NumericString values keep their bytes and tags; unrecognized value types
// are carried through untouched. The outer SEQUENCE tag is stripped so two
// normalized names compare with a plain byte comparison.
//
// Two names that are equivalent under the directory-string matching rule
// (same attributes, differing only in case, whitespace, or foldable string
// type) normalize to identical bytes.
func NormalizeName(nameTLV []byte) ([]byte, error) {
	input := cryptobyte.String(nameTLV)
	var rdnSequence cryptobyte.String
	if !input.ReadASN1(&rdnSequence, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed Name")
	}
	if !input.Empty() {
		return nil, errors.New("trailing data after Name")
	}

	out := cryptobyte.NewBuilder(nil)
	for !rdnSequence.Empty() {
		var rdn cryptobyte.String
		if !rdnSequence.ReadASN1(&rdn, cbasn1.SET) {
			return nil, errors.New("malformed RDN")
		}
		// DER already mandates a canonical order for SET OF, so the
		// attributes are written back in the order received.
		out.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
			for !rdn.Empty() {
				var atv cryptobyte.String
				if !rdn.ReadASN1(&atv, cbasn1.SEQUENCE) {
					b.SetError(errors.New("malformed AttributeTypeAndValue"))
					return
				}
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					var attrType cryptobyte.String
					if !atv.ReadASN1Element(&attrType, cbasn1.OBJECT_IDENTIFIER) {
						b.SetError(errors.New("malformed attribute type"))
						return
					}
					b.AddBytes(attrType)

					before := atv
					var value cryptobyte.String
					var valueTag cbasn1.Tag
					if !atv.ReadAnyASN1(&value, &valueTag) {
						b.SetError(errors.New("malformed attribute value"))
						return
					}
					rawElement := before[:len(before)-len(atv)]
					if !atv.Empty() {
						b.SetError(errors.New("trailing data in AttributeTypeAndValue"))
						return
					}
					addNormalizedValue(b, valueTag, value, rawElement)
				})
			}
		})
	}
	return out.Bytes()
}

func addNormalizedValue(b *cryptobyte.Builder, tag cbasn1.Tag, value, rawElement []byte) {
	switch tag {
	case cbasn1.PrintableString, cbasn1.UTF8String, tagT61String, tagUniversalString, tagBMPString:
		s, err := decodeDirectoryString(tag, value)
		if err != nil {
			b.SetError(err)
			return
		}
		folded := foldString(s)
		b.AddASN1(cbasn1.UTF8String, func(b *cryptobyte.Builder) {
			b.AddBytes([]byte(folded))
		})
	case cbasn1.IA5String, tagNumericString:
		// Matched byte-for-byte under the original tag; no folding.
		b.AddBytes(rawElement)
	default:
		// Unhandled value types are matched by exact byte equality.
		b.AddBytes(rawElement)
	}
}

// foldString applies the directory-string matching rule's insignificant
// differences: Unicode case folding, then collapsing every run of
// whitespace to a single space and trimming the ends.
func foldString(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

func decodeDirectoryString(tag cbasn1.Tag, value []byte) (string, error) {
	switch tag {
	case cbasn1.PrintableString:
		for _, b := range value {
			if !isPrintable(b) {
				return "", fmt.Errorf("invalid PrintableString byte 0x%02x", b)
			}
		}
		return string(value), nil
	case cbasn1.UTF8String:
		if !utf8.Valid(value) {
			return "", errors.New("invalid UTF8String")
		}
		return string(value), nil
	case tagT61String:
		// T61String in circulating certificates is Latin-1 in practice.
		s, err := charmap.ISO8859_1.NewDecoder().Bytes(value)
		if err != nil {
			return "", fmt.Errorf("invalid T61String: %w", err)
		}
		return string(s), nil
	case tagBMPString:
		return decodeBMPString(value)
	case tagUniversalString:
		return decodeUniversalString(value)
	}
	return "", fmt.Errorf("not a directory string tag: %d", tag)
}

// decodeBMPString decodes UTF-16BE. Unpaired surrogates are a decode
// failure, not a replacement character.
func decodeBMPString(value []byte) (string, error) {
	if len(value)%2 != 0 {
		return "", errors.New("BMPString has odd length")
	}
	var sb strings.Builder
	for i := 0; i < len(value); i += 2 {
		u := uint16(value[i])<<8 | uint16(value[i+1])
		switch {
		case utf16.IsSurrogate(rune(u)):
			if u >= 0xdc00 {
				return "", errors.New("BMPString contains an unpaired low surrogate")
			}
			if i+4 > len(value) {
				return "", errors.New("BMPString contains an unpaired high surrogate")
			}
			u2 := uint16(value[i+2])<<8 | uint16(value[i+3])
			r := utf16.DecodeRune(rune(u), rune(u2))
			if r == utf8.RuneError {
				return "", errors.New("BMPString contains an invalid surrogate pair")
			}
			sb.WriteRune(r)
			i += 2
		default:
			sb.WriteRune(rune(u))
		}
	}
	return sb.String(), nil
}

// decodeUniversalString decodes UTF-32BE.
func decodeUniversalString(value []byte) (string, error) {
	if len(value)%4 != 0 {
		return "", errors.New("UniversalString length is not a multiple of 4")
	}
	var sb strings.Builder
	for i := 0; i < len(value); i += 4 {
		r := rune(uint32(value[i])<<24 | uint32(value[i+1])<<16 | uint32(value[i+2])<<8 | uint32(value[i+3]))
		if !utf8.ValidRune(r) {
			return "", fmt.Errorf("UniversalString contains invalid code point U+%08X", r)
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

func isPrintable(b byte) bool {
	return 'a' <= b && b <= 'z' ||
		'A' <= b && b <= 'Z' ||
		'0' <= b && b <= '9' ||
		'\'' <= b && b <= ')' ||
		'+' <= b && b <= '/' ||
		b == ' ' ||
		b == ':' ||
		b == '=' ||
		b == '?'
}
