package eligibility

import "hemolink/internal/matching/models"

// compatible[recipient][donor] is the red-cell compatibility matrix. Rows and
// columns follow models.AllBloodTypes: O-, O+, A-, A+, B-, B+, AB-, AB+.
var compatible = [8][8]bool{
	//          O-     O+     A-     A+     B-     B+     AB-    AB+
	/* O-  */ {true, false, false, false, false, false, false, false},
	/* O+  */ {true, true, false, false, false, false, false, false},
	/* A-  */ {true, false, true, false, false, false, false, false},
	/* A+  */ {true, true, true, true, false, false, false, false},
	/* B-  */ {true, false, false, false, true, false, false, false},
	/* B+  */ {true, true, false, false, true, true, false, false},
	/* AB- */ {true, false, true, false, true, false, true, false},
	/* AB+ */ {true, true, true, true, true, true, true, true},
}

// CanDonate reports whether a donor of type donor may give red cells to a
// recipient of type recipient. Unknown types are never compatible.
func CanDonate(donor, recipient models.BloodType) bool {
	d, r := donor.Index(), recipient.Index()
	if d < 0 || r < 0 {
		return false
	}
	return compatible[r][d]
}

// CompatibleDonors returns the donor types a recipient can receive from, in
// table order.
func CompatibleDonors(recipient models.BloodType) []models.BloodType {
	r := recipient.Index()
	if r < 0 {
		return nil
	}
	var out []models.BloodType
	for d, ok := range compatible[r] {
		if ok {
			out = append(out, models.AllBloodTypes[d])
		}
	}
	return out
}
