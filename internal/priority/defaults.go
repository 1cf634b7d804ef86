package priority

// DefaultTiers is the reference tier set seeded on first start. Cadence is
// the maximum permitted gap, in calendar months, between qualifying
// contacts for a case at that tier.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Code:          "P1",
			Name:          "Critical Priority",
			CadenceMonths: 1,
			Description:   "Highest priority level requiring monthly appointments. Cases with immediate risk or urgent needs that require constant monitoring.",
			ColorCode:     "red",
		},
		{
			Code:          "P2",
			Name:          "High Priority",
			CadenceMonths: 1,
			Description:   "High priority level requiring monthly appointments. Cases with significant needs that require regular monitoring.",
			ColorCode:     "orange",
		},
		{
			Code:          "P3",
			Name:          "Medium Priority",
			CadenceMonths: 3,
			Description:   "Medium priority level requiring quarterly appointments. Cases with moderate needs that require periodic monitoring.",
			ColorCode:     "yellow",
		},
		{
			Code:          "P4",
			Name:          "Standard Priority",
			CadenceMonths: 6,
			Description:   "Standard priority level requiring semi-annual appointments. Cases with lower needs that require less frequent monitoring.",
			ColorCode:     "blue",
		},
		{
			Code:          "P5",
			Name:          "Low Priority",
			CadenceMonths: 12,
			Description:   "Low priority level requiring annual appointments. Cases with minimal needs that require basic annual check-ins.",
			ColorCode:     "green",
		},
		{
			Code:          "P6",
			Name:          "Maintenance Priority",
			CadenceMonths: 12,
			Description:   "Maintenance level requiring annual appointments. Cases that are stable and only need routine annual check-ins.",
			ColorCode:     "gray",
		},
	}
}
