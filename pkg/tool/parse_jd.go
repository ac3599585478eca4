package tool

import (
	"context"
	"regexp"
	"strings"
)

// knownSkills is the vocabulary the JD parser and ATS scorer extract against.
var knownSkills = []string{
	"go", "golang", "rust", "python", "typescript", "javascript", "java",
	"react", "node", "postgresql", "mysql", "redis", "kafka", "grpc",
	"kubernetes", "docker", "terraform", "aws", "gcp", "azure",
	"prometheus", "linux", "networking", "distributed-systems",
	"spark", "airflow", "pytorch", "mlops", "ci/cd", "sql",
}

var seniorityMarkers = []struct {
	level   string
	markers []string
}{
	{"principal", []string{"principal", "distinguished"}},
	{"staff", []string{"staff"}},
	{"senior", []string{"senior", "sr.", "sr ", "lead"}},
	{"junior", []string{"junior", "entry level", "entry-level", "graduate", "intern"}},
}

func parseJDTool() Definition {
	return Definition{
		Name:        "parse_jd",
		Description: "Parse a job description into title, skills, requirements, and seniority.",
		ReadOnly:    true,
		Schema: `{
			"type": "object",
			"properties": {
				"text": {"type": "string", "minLength": 1}
			},
			"required": ["text"],
			"additionalProperties": false
		}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			text := stringArg(args, "text")
			lines := strings.Split(text, "\n")

			title := ""
			for _, line := range lines {
				if trimmed := strings.TrimSpace(line); trimmed != "" {
					title = trimmed
					break
				}
			}

			return map[string]any{
				"title":        title,
				"skills":       extractSkills(text),
				"requirements": extractBullets(lines),
				"seniority":    detectSeniority(text),
			}, nil
		},
	}
}

// skillPatterns matches each skill as a whole token: "sql" must not hit
// inside "postgresql", nor "go" inside "golang" or "django".
var skillPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(knownSkills))
	for _, skill := range knownSkills {
		patterns[skill] = regexp.MustCompile(`\b` + regexp.QuoteMeta(skill) + `\b`)
	}
	return patterns
}()

func extractSkills(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, skill := range knownSkills {
		if skillPatterns[skill].MatchString(lower) {
			found = append(found, skill)
		}
	}
	return dedupeSkills(found)
}

// containsSkill reports whether lowercased text mentions the skill as a
// whole token.
func containsSkill(text, skill string) bool {
	if p, ok := skillPatterns[skill]; ok {
		return p.MatchString(text)
	}
	return strings.Contains(text, skill)
}

// dedupeSkills collapses aliases (golang→go) and duplicates.
func dedupeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s == "golang" {
			s = "go"
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func extractBullets(lines []string) []string {
	var bullets []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(trimmed, prefix) {
				bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
				break
			}
		}
	}
	return bullets
}

func detectSeniority(text string) string {
	lower := strings.ToLower(text)
	for _, s := range seniorityMarkers {
		for _, marker := range s.markers {
			if strings.Contains(lower, marker) {
				return s.level
			}
		}
	}
	return "mid"
}
