package tool

import (
	"context"
	"fmt"
)

// CompanyProfile is the research_company result shape.
type CompanyProfile struct {
	Name      string   `json:"name"`
	Industry  string   `json:"industry"`
	Size      string   `json:"size"`
	HQ        string   `json:"hq"`
	Culture   string   `json:"culture"`
	TechStack []string `json:"tech_stack,omitempty"`
	Notes     string   `json:"notes"`
}

var companyProfiles = map[string]CompanyProfile{
	"northwind labs": {
		Name: "Northwind Labs", Industry: "Logistics software", Size: "200-500", HQ: "Berlin, DE",
		Culture:   "Platform-team driven, strong written culture, quarterly hack weeks.",
		TechStack: []string{"go", "postgresql", "kubernetes"},
		Notes:     "Raised Series C in 2025; engineering blog is active and detailed.",
	},
	"ferrous compute": {
		Name: "Ferrous Compute", Industry: "Edge infrastructure", Size: "50-100", HQ: "Remote-first (EU)",
		Culture:   "Async-heavy, RFC-based decisions, small senior teams.",
		TechStack: []string{"rust", "go", "linux"},
		Notes:     "Known for deep systems interviews; expect a take-home proxy exercise.",
	},
	"atlas health": {
		Name: "Atlas Health", Industry: "Healthcare integrations", Size: "500-1000", HQ: "London, UK",
		Culture:   "Regulated environment, slower release cadence, good mentorship tracks.",
		TechStack: []string{"go", "grpc", "aws"},
		Notes:     "Clinical-safety review applies to all patient-facing changes.",
	},
	"lumen pay": {
		Name: "Lumen Pay", Industry: "Payments", Size: "1000+", HQ: "New York, US",
		Culture:   "On-call heavy on ledger teams, strong comp, promotion-driven.",
		TechStack: []string{"go", "kafka", "postgresql"},
		Notes:     "Interview loop includes a ledger-modeling system design round.",
	},
}

func researchCompanyTool() Definition {
	return Definition{
		Name:        "research_company",
		Description: "Research a company: industry, size, culture signals, and known tech stack.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"name": {"type": "string", "minLength": 1}
			},
			"required": ["name"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			name := stringArg(args, "name")
			for key, profile := range companyProfiles {
				if containsFold(key, name) || containsFold(name, key) {
					return profile, nil
				}
			}

			// No dossier on file; return a skeleton so agents can still
			// reason about what to verify manually.
			return CompanyProfile{
				Name:    name,
				Notes:   fmt.Sprintf("No dossier on file for %q. Check their careers page, recent funding news, and engineering blog.", name),
				Culture: "unknown",
			}, nil
		},
	}
}
