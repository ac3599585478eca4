package tool

import (
	"context"
	"strings"
)

// JobListing is one opening returned by search_jobs.
type JobListing struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Company  string   `json:"company"`
	Location string   `json:"location"`
	Remote   bool     `json:"remote"`
	Salary   string   `json:"salary"`
	Skills   []string `json:"skills"`
	Summary  string   `json:"summary"`
}

// jobCatalog is the built-in listing source. The search handler filters it
// deterministically so tests and demos are reproducible.
var jobCatalog = []JobListing{
	{ID: "job-001", Title: "Senior Backend Engineer", Company: "Northwind Labs", Location: "Berlin, DE", Remote: true, Salary: "€85k-€105k", Skills: []string{"go", "postgresql", "kubernetes"}, Summary: "Own the order-routing services on a platform team of six."},
	{ID: "job-002", Title: "Rust Systems Engineer", Company: "Ferrous Compute", Location: "Remote (EU)", Remote: true, Salary: "€90k-€120k", Skills: []string{"rust", "linux", "networking"}, Summary: "Build the data-plane proxy for a managed edge network."},
	{ID: "job-003", Title: "Staff Software Engineer", Company: "Atlas Health", Location: "London, UK", Remote: false, Salary: "£110k-£135k", Skills: []string{"go", "grpc", "aws"}, Summary: "Lead the clinical-integrations group across three squads."},
	{ID: "job-004", Title: "Platform Engineer", Company: "Driftwood", Location: "Amsterdam, NL", Remote: true, Salary: "€75k-€95k", Skills: []string{"kubernetes", "terraform", "python"}, Summary: "Run the internal developer platform for 40 product engineers."},
	{ID: "job-005", Title: "Backend Engineer, Payments", Company: "Lumen Pay", Location: "Remote (US)", Remote: true, Salary: "$140k-$170k", Skills: []string{"go", "postgresql", "kafka"}, Summary: "Ledger and reconciliation services processing $2B/year."},
	{ID: "job-006", Title: "Machine Learning Engineer", Company: "Quarry AI", Location: "Paris, FR", Remote: false, Salary: "€80k-€100k", Skills: []string{"python", "pytorch", "mlops"}, Summary: "Productionize ranking models for a marketplace search team."},
	{ID: "job-007", Title: "Site Reliability Engineer", Company: "Northwind Labs", Location: "Berlin, DE", Remote: true, Salary: "€80k-€100k", Skills: []string{"kubernetes", "prometheus", "go"}, Summary: "Own SLOs and incident response for the core platform."},
	{ID: "job-008", Title: "Rust Developer, Trading Infrastructure", Company: "Meridian Markets", Location: "Zurich, CH", Remote: false, Salary: "CHF 140k-170k", Skills: []string{"rust", "low-latency", "linux"}, Summary: "Sub-millisecond order gateway work on a small infra team."},
	{ID: "job-009", Title: "Full-Stack Engineer", Company: "Harborview", Location: "Remote (EU)", Remote: true, Salary: "€70k-€90k", Skills: []string{"typescript", "react", "node"}, Summary: "Ship scheduling features for a logistics SaaS."},
	{ID: "job-010", Title: "Data Engineer", Company: "Atlas Health", Location: "London, UK", Remote: true, Salary: "£85k-£105k", Skills: []string{"python", "spark", "airflow"}, Summary: "Build the claims ingestion pipeline feeding analytics."},
	{ID: "job-011", Title: "Senior Go Engineer", Company: "Ferrous Compute", Location: "Remote (EU)", Remote: true, Salary: "€85k-€110k", Skills: []string{"go", "grpc", "distributed-systems"}, Summary: "Control-plane APIs for the edge scheduling service."},
	{ID: "job-012", Title: "Engineering Manager, Infrastructure", Company: "Lumen Pay", Location: "New York, US", Remote: false, Salary: "$190k-$230k", Skills: []string{"leadership", "aws", "kubernetes"}, Summary: "Manage two infra squads; hands-on architecture expected."},
}

func searchJobsTool() Definition {
	return Definition{
		Name:        "search_jobs",
		Description: "Search current job openings by keywords, with optional location and remote filters.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"location": {"type": "string"},
				"remote": {"type": "boolean"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["keywords"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			keywords := stringSliceArg(args, "keywords")
			location := stringArg(args, "location")
			remoteOnly := boolArg(args, "remote")
			maxResults := intArg(args, "max_results", 15)

			var matches []JobListing
			for _, job := range jobCatalog {
				if remoteOnly && !job.Remote {
					continue
				}
				if location != "" && !containsFold(job.Location, location) {
					continue
				}
				if !jobMatchesKeywords(job, keywords) {
					continue
				}
				matches = append(matches, job)
				if len(matches) >= maxResults {
					break
				}
			}

			return map[string]any{
				"query":   strings.Join(keywords, " "),
				"count":   len(matches),
				"results": matches,
			}, nil
		},
	}
}

func jobMatchesKeywords(job JobListing, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(job.Title + " " + job.Company + " " + job.Summary + " " + strings.Join(job.Skills, " "))
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(strings.TrimSpace(kw))) {
			return true
		}
	}
	return false
}
