package names

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// NameConstraints is the decoded NameConstraints extension. At least one of
// the two subtree lists is non-nil.
type NameConstraints struct {
	PermittedSubtrees *GeneralNames
	ExcludedSubtrees  *GeneralNames
}

// ParseNameConstraints parses the inner value of a NameConstraints
// extension:
//
//	NameConstraints ::= SEQUENCE {
//	     permittedSubtrees       [0]     GeneralSubtrees OPTIONAL,
//	     excludedSubtrees        [1]     GeneralSubtrees OPTIONAL }
//	GeneralSubtrees ::= SEQUENCE SIZE (1..MAX) OF GeneralSubtree
//	GeneralSubtree ::= SEQUENCE {
//	     base                    GeneralName,
//	     minimum         [0]     BaseDistance DEFAULT 0,
//	     maximum         [1]     BaseDistance OPTIONAL }
//
// RFC 5280 requires minimum to be 0 and maximum to be absent; subtrees that
// say otherwise are rejected rather than silently reinterpreted.
func ParseNameConstraints(der []byte) (*NameConstraints, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed NameConstraints")
	}
	if !input.Empty() {
		return nil, errors.New("trailing data after NameConstraints")
	}

	nc := &NameConstraints{}
	var err error
	nc.PermittedSubtrees, err = readSubtrees(&seq, cbasn1.Tag(0).Constructed().ContextSpecific())
	if err != nil {
		return nil, err
	}
	nc.ExcludedSubtrees, err = readSubtrees(&seq, cbasn1.Tag(1).Constructed().ContextSpecific())
	if err != nil {
		return nil, err
	}
	if !seq.Empty() {
		return nil, errors.New("trailing data in NameConstraints")
	}
	if nc.PermittedSubtrees == nil && nc.ExcludedSubtrees == nil {
		return nil, errors.New("NameConstraints requires at least one of permittedSubtrees and excludedSubtrees")
	}
	return nc, nil
}

func readSubtrees(seq *cryptobyte.String, tag cbasn1.Tag) (*GeneralNames, error) {
	var subtrees cryptobyte.String
	var present bool
	if !seq.ReadOptionalASN1(&subtrees, &present, tag) {
		return nil, errors.New("malformed GeneralSubtrees")
	}
	if !present {
		return nil, nil
	}
	if subtrees.Empty() {
		return nil, errors.New("GeneralSubtrees must contain at least one subtree")
	}
	gn := &GeneralNames{}
	for !subtrees.Empty() {
		var subtree cryptobyte.String
		if !subtrees.ReadASN1(&subtree, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed GeneralSubtree")
		}
		var base cryptobyte.String
		var baseTag cbasn1.Tag
		if !subtree.ReadAnyASN1(&base, &baseTag) {
			return nil, errors.New("malformed GeneralSubtree base")
		}
		err := gn.addEntry(baseTag, base, ipAddressAndMask)
		if err != nil {
			return nil, err
		}

		var minimum cryptobyte.String
		var hasMin bool
		if !subtree.ReadOptionalASN1(&minimum, &hasMin, cbasn1.Tag(0).ContextSpecific()) {
			return nil, errors.New("malformed GeneralSubtree minimum")
		}
		if hasMin {
			var v int64
			m := cryptobyte.NewBuilder(nil)
			m.AddASN1(cbasn1.INTEGER, func(b *cryptobyte.Builder) { b.AddBytes(minimum) })
			retagged, err := m.Bytes()
			if err != nil {
				return nil, err
			}
			s := cryptobyte.String(retagged)
			if !s.ReadASN1Integer(&v) {
				return nil, errors.New("malformed GeneralSubtree minimum")
			}
			if v != 0 {
				return nil, errors.New("GeneralSubtree minimum must be 0")
			}
		}
		if !subtree.Empty() {
			// Either a maximum, which RFC 5280 forbids, or junk.
			return nil, errors.New("GeneralSubtree maximum is not permitted")
		}
	}
	return gn, nil
}
