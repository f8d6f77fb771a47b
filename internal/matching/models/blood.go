package models

import (
	"strings"

	dErrors "hemolink/pkg/domain-errors"
)

// BloodType is an ABO/Rh blood group.
type BloodType string

const (
	BloodONeg  BloodType = "O-"
	BloodOPos  BloodType = "O+"
	BloodANeg  BloodType = "A-"
	BloodAPos  BloodType = "A+"
	BloodBNeg  BloodType = "B-"
	BloodBPos  BloodType = "B+"
	BloodABNeg BloodType = "AB-"
	BloodABPos BloodType = "AB+"
)

// AllBloodTypes lists the eight groups in compatibility-table order.
var AllBloodTypes = []BloodType{
	BloodONeg, BloodOPos, BloodANeg, BloodAPos,
	BloodBNeg, BloodBPos, BloodABNeg, BloodABPos,
}

// ParseBloodType accepts the canonical form plus the common "pos"/"neg"
// spellings used by upstream registration forms.
func ParseBloodType(s string) (BloodType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "")
	switch {
	case strings.HasSuffix(norm, "POS"):
		norm = strings.TrimSuffix(norm, "POS") + "+"
	case strings.HasSuffix(norm, "NEG"):
		norm = strings.TrimSuffix(norm, "NEG") + "-"
	}
	bt := BloodType(norm)
	if !bt.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid blood type: "+s)
	}
	return bt, nil
}

// IsValid checks if the blood type is one of the eight supported groups.
func (b BloodType) IsValid() bool {
	return b.index() >= 0
}

// ABO returns the group without the Rh factor ("O", "A", "B", "AB").
func (b BloodType) ABO() string {
	return strings.TrimRight(string(b), "+-")
}

// RhPositive reports whether the Rh factor is positive.
func (b BloodType) RhPositive() bool {
	return strings.HasSuffix(string(b), "+")
}

func (b BloodType) index() int {
	for i, bt := range AllBloodTypes {
		if bt == b {
			return i
		}
	}
	return -1
}

// Index returns the position of b in AllBloodTypes, or -1.
func (b BloodType) Index() int {
	return b.index()
}
