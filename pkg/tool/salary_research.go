package tool

import (
	"context"
	"strings"
)

// salaryBands are EUR base bands by role family, mid-level. Seniority and
// location multipliers adjust from here.
var salaryBands = map[string][2]int{
	"backend":  {65000, 85000},
	"frontend": {58000, 78000},
	"fullstack": {60000, 80000},
	"platform": {70000, 90000},
	"sre":      {70000, 92000},
	"data":     {62000, 84000},
	"ml":       {72000, 98000},
	"manager":  {85000, 115000},
}

var seniorityMultipliers = map[string]float64{
	"junior":    0.7,
	"mid":       1.0,
	"senior":    1.3,
	"staff":     1.55,
	"principal": 1.8,
}

func salaryResearchTool() Definition {
	return Definition{
		Name:        "salary_research",
		Description: "Estimate a salary band for a role, seniority, and location.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"role": {"type": "string", "minLength": 1},
				"seniority": {"type": "string", "enum": ["junior", "mid", "senior", "staff", "principal"]},
				"location": {"type": "string"}
			},
			"required": ["role"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			role := strings.ToLower(stringArg(args, "role"))
			seniority := stringArg(args, "seniority")
			if seniority == "" {
				seniority = detectSeniority(role)
			}
			location := stringArg(args, "location")

			low, high := bandForRole(role)
			mult := seniorityMultipliers[seniority]
			if mult == 0 {
				mult = 1.0
			}
			mult *= locationMultiplier(location)

			return map[string]any{
				"role":      role,
				"seniority": seniority,
				"location":  location,
				"currency":  "EUR",
				"low":       int(float64(low) * mult),
				"high":      int(float64(high) * mult),
				"basis":     "aggregated European market bands, base salary only",
			}, nil
		},
	}
}

func bandForRole(role string) (int, int) {
	for family, band := range salaryBands {
		if strings.Contains(role, family) {
			return band[0], band[1]
		}
	}
	// Generic software engineering band.
	return 60000, 82000
}

func locationMultiplier(location string) float64 {
	lower := strings.ToLower(location)
	switch {
	case strings.Contains(lower, "zurich"), strings.Contains(lower, "switzerland"):
		return 1.5
	case strings.Contains(lower, "london"), strings.Contains(lower, "uk"):
		return 1.2
	case strings.Contains(lower, "us"), strings.Contains(lower, "new york"), strings.Contains(lower, "san francisco"):
		return 1.4
	case strings.Contains(lower, "berlin"), strings.Contains(lower, "germany"):
		return 1.05
	default:
		return 1.0
	}
}
