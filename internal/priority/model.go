package priority

import (
	"fmt"
	"time"

	"github.com/rdss/casework/internal/shared/errors"
)

// Tier is a priority tier mapping a code to a required contact cadence.
// Tiers are a closed reference set: seeded once and immutable afterwards,
// so compliance calculations stay reproducible for audits. Changing a
// cadence means introducing a new tier, not editing an existing one.
type Tier struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	CadenceMonths int       `json:"cadence_months"`
	Description   string    `json:"description"`
	ColorCode     string    `json:"color_code"`
	CreatedAt     time.Time `json:"created_at"`
}

// Supervisory reports whether cases at this tier escalate to a supervisory
// recipient set (P1-P3) in addition to the assigned worker.
func (t Tier) Supervisory() bool {
	return t.Code == "P1" || t.Code == "P2" || t.Code == "P3"
}

// ValidateCode enforces the P1..P6 format.
func ValidateCode(code string) error {
	if len(code) != 2 || code[0] != 'P' || code[1] < '0' || code[1] > '9' {
		return errors.Validation(errors.CodeInvalidPriorityCode,
			fmt.Sprintf("priority code must be in the format P1..P6, got %q", code))
	}

	n := int(code[1] - '0')
	if n < 1 || n > 6 {
		return errors.Validation(errors.CodeInvalidPriorityCode,
			fmt.Sprintf("priority code must be between P1 and P6, got %q", code))
	}

	return nil
}

// IsSupervisoryCode reports supervisory routing for a bare code, used where
// only the code string is at hand (escalation payloads).
func IsSupervisoryCode(code string) bool {
	return code == "P1" || code == "P2" || code == "P3"
}
