package tree

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"go.asdf.sh/asdf/extension"
)

// ComplexTag is the built-in scalar complex number tag (spec.md §D.4,
// grounded on asdf.core._converters.complex.ComplexConverter in
// original_source).
const ComplexTag = "tag:stsci.edu:asdf/core/complex-1.0.0"

type complexConverter struct{}

func (complexConverter) Tags() []string { return []string{ComplexTag} }

func (complexConverter) Types() []extension.TypeRef {
	return []extension.TypeRef{
		extension.ResolvedTypeRef(reflect.TypeOf(complex64(0))),
		extension.ResolvedTypeRef(reflect.TypeOf(complex128(0))),
	}
}

func (complexConverter) SelectTag(_ any, _ []string, _ extension.SerializationContext) string {
	return ComplexTag
}

// ToYAMLTree serializes as "<real><sign><imag>j", the same textual form
// Python's complex repr produces and asdf.core parses back.
func (complexConverter) ToYAMLTree(obj any, _ extension.SerializationContext) (any, error) {
	var re, im float64

	switch v := obj.(type) {
	case complex64:
		re, im = float64(real(v)), float64(imag(v))
	case complex128:
		re, im = real(v), imag(v)
	default:
		return nil, fmt.Errorf("complex converter given %T", obj)
	}

	sign := "+"
	if im < 0 {
		sign = ""
	}

	return fmt.Sprintf("%s%s%sj", formatFloat(re), sign, formatFloat(im)), nil
}

func (complexConverter) FromYAMLTree(_ string, node any, _ extension.SerializationContext) (any, error) {
	s, ok := node.(string)
	if !ok {
		return nil, fmt.Errorf("complex node is not a string: %T", node)
	}

	s = strings.TrimSuffix(strings.TrimSpace(s), "j")

	// Find the sign separating the real and imaginary parts, skipping the
	// leading sign of the real part itself and any exponent sign.
	splitAt := -1

	for i := len(s) - 1; i > 0; i-- {
		if (s[i] == '+' || s[i] == '-') && s[i-1] != 'e' && s[i-1] != 'E' {
			splitAt = i

			break
		}
	}

	if splitAt < 0 {
		im, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing complex imaginary part %q: %w", s, err)
		}

		return complex(0, im), nil
	}

	re, err := strconv.ParseFloat(s[:splitAt], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing complex real part %q: %w", s[:splitAt], err)
	}

	im, err := strconv.ParseFloat(s[splitAt:], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing complex imaginary part %q: %w", s[splitAt:], err)
	}

	return complex(re, im), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
