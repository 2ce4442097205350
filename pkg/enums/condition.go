package enums

import (
	"fmt"
	"slices"
	"strings"
)

// CardCondition is the grading bucket that forms part of a lot's classification key.
type CardCondition string

const (
	ConditionNearMint    CardCondition = "NM"
	ConditionLightPlayed CardCondition = "LP"
	ConditionModPlayed   CardCondition = "MP"
	ConditionHeavyPlayed CardCondition = "HP"
	ConditionDamaged     CardCondition = "DMG"
)

var validConditions = []CardCondition{
	ConditionNearMint,
	ConditionLightPlayed,
	ConditionModPlayed,
	ConditionHeavyPlayed,
	ConditionDamaged,
}

func (c CardCondition) String() string {
	return string(c)
}

func (c CardCondition) IsValid() bool {
	return slices.Contains(validConditions, c)
}

// ParseCardCondition accepts any casing and surrounding whitespace.
func ParseCardCondition(value string) (CardCondition, error) {
	normalized := CardCondition(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid card condition %q", value)
}
