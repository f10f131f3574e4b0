package strategy

import (
	"fmt"
	"strings"
)

// Variant names one of the closed set of lifecycle engines.
type Variant string

const (
	VariantCascade     Variant = "cascade"
	VariantAccumulator Variant = "accumulator"
	VariantStopTarget  Variant = "stop_target"
	VariantOneOrMore   Variant = "one_or_more"
)

var Variants = []Variant{VariantCascade, VariantAccumulator, VariantStopTarget, VariantOneOrMore}

func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Variants {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown strategy variant %q", s)
}
