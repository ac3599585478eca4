package tool

import (
	"context"
	"strings"
)

func scoreATSTool() Definition {
	return Definition{
		Name:        "score_ats",
		Description: "Score a resume against a job description (0-100) and list matched and missing keywords.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"resume": {"type": "string", "minLength": 1},
				"job_description": {"type": "string", "minLength": 1}
			},
			"required": ["resume", "job_description"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			resume := strings.ToLower(stringArg(args, "resume"))
			jdSkills := extractSkills(stringArg(args, "job_description"))

			var matched, missing []string
			for _, skill := range jdSkills {
				if containsSkill(resume, skill) {
					matched = append(matched, skill)
				} else {
					missing = append(missing, skill)
				}
			}

			// Coverage of the JD's skill vocabulary; a JD with no detectable
			// skills scores neutral.
			score := 50
			if len(jdSkills) > 0 {
				score = len(matched) * 100 / len(jdSkills)
			}

			return map[string]any{
				"score":            score,
				"verdict":          atsVerdict(score),
				"matched_keywords": matched,
				"missing_keywords": missing,
			}, nil
		},
	}
}

func atsVerdict(score int) string {
	switch {
	case score >= 70:
		return "strong"
	case score >= 40:
		return "moderate"
	default:
		return "weak"
	}
}
