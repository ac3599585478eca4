package tool

import (
	"context"
	"fmt"
	"strings"
)

func draftCoverLetterTool() Definition {
	return Definition{
		Name:        "draft_cover_letter",
		Description: "Draft a cover letter skeleton from role, company, and candidate highlights.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"candidate_name": {"type": "string"},
				"role": {"type": "string", "minLength": 1},
				"company": {"type": "string", "minLength": 1},
				"highlights": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["role", "company"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			candidate := stringArg(args, "candidate_name")
			if candidate == "" {
				candidate = "[Your name]"
			}
			role := stringArg(args, "role")
			company := stringArg(args, "company")
			highlights := stringSliceArg(args, "highlights")

			var body strings.Builder
			fmt.Fprintf(&body, "Dear %s hiring team,\n\n", company)
			fmt.Fprintf(&body, "I am writing to apply for the %s position. ", role)
			body.WriteString("Your team's work stood out to me, and my background maps directly onto what the role asks for.\n\n")

			if len(highlights) > 0 {
				body.WriteString("A few things I would bring:\n")
				for _, h := range highlights {
					fmt.Fprintf(&body, "- %s\n", h)
				}
				body.WriteString("\n")
			}

			fmt.Fprintf(&body, "I would welcome the chance to talk about how I can contribute to %s.\n\n", company)
			fmt.Fprintf(&body, "Best regards,\n%s\n", candidate)

			return map[string]any{
				"letter":     body.String(),
				"word_count": len(strings.Fields(body.String())),
			}, nil
		},
	}
}
