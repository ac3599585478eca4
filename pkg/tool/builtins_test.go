package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/models"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func TestBuiltins_AllRegistered(t *testing.T) {
	r := builtinRegistry(t)
	for _, name := range []string{
		"search_jobs", "parse_jd", "score_ats",
		"research_company", "draft_cover_letter", "salary_research",
	} {
		assert.True(t, r.Has(name), "missing builtin %s", name)
	}
}

func TestSearchJobs_FiltersByKeywordAndRemote(t *testing.T) {
	r := builtinRegistry(t)

	result := r.Invoke(context.Background(), "search_jobs", map[string]any{
		"keywords": []string{"rust"},
		"remote":   true,
	})
	require.True(t, result.OK, "error: %s", result.Error)

	data := result.Data.(map[string]any)
	listings := data["results"].([]JobListing)
	require.NotEmpty(t, listings)
	for _, job := range listings {
		assert.True(t, job.Remote)
	}
}

func TestSearchJobs_MissingKeywordsIsInvalid(t *testing.T) {
	r := builtinRegistry(t)

	result := r.Invoke(context.Background(), "search_jobs", map[string]any{})
	assert.False(t, result.OK)
	assert.Equal(t, models.ErrKindInvalidArgs, result.ErrorKind)
}

func TestParseJD_ExtractsSkillsAndSeniority(t *testing.T) {
	r := builtinRegistry(t)

	jd := `Senior Backend Engineer
We build payments infrastructure.
- 5+ years with Go and PostgreSQL
- Experience with Kubernetes
- Kafka a plus`

	result := r.Invoke(context.Background(), "parse_jd", map[string]any{"text": jd})
	require.True(t, result.OK)

	data := result.Data.(map[string]any)
	assert.Equal(t, "Senior Backend Engineer", data["title"])
	assert.Equal(t, "senior", data["seniority"])
	assert.Contains(t, data["skills"], "go")
	assert.Contains(t, data["skills"], "kubernetes")
	assert.Len(t, data["requirements"], 3)
}

func TestParseJD_SkillsMatchWholeTokensOnly(t *testing.T) {
	r := builtinRegistry(t)

	// "PostgreSQL" must not also surface "sql", and "Django" must not
	// surface "go"
	result := r.Invoke(context.Background(), "parse_jd", map[string]any{
		"text": "Python Engineer\nWe run Django on PostgreSQL.",
	})
	require.True(t, result.OK)

	data := result.Data.(map[string]any)
	assert.ElementsMatch(t, []string{"python", "postgresql"}, data["skills"])

	// an alias still collapses onto the canonical token
	result = r.Invoke(context.Background(), "parse_jd", map[string]any{
		"text": "Backend Engineer\nGolang and SQL required.",
	})
	require.True(t, result.OK)
	data = result.Data.(map[string]any)
	assert.ElementsMatch(t, []string{"go", "sql"}, data["skills"])
}

func TestScoreATS_KeywordCoverage(t *testing.T) {
	r := builtinRegistry(t)

	result := r.Invoke(context.Background(), "score_ats", map[string]any{
		"resume":          "Backend engineer with Go and PostgreSQL experience.",
		"job_description": "Looking for Go, PostgreSQL, Kubernetes, and Kafka experience.",
	})
	require.True(t, result.OK)

	data := result.Data.(map[string]any)
	assert.Equal(t, 50, data["score"])
	assert.Equal(t, "moderate", data["verdict"])
	assert.ElementsMatch(t, []string{"go", "postgresql"}, data["matched_keywords"])
	assert.ElementsMatch(t, []string{"kubernetes", "kafka"}, data["missing_keywords"])
}

func TestResearchCompany_KnownAndUnknown(t *testing.T) {
	r := builtinRegistry(t)

	result := r.Invoke(context.Background(), "research_company", map[string]any{"name": "Northwind Labs"})
	require.True(t, result.OK)
	profile := result.Data.(CompanyProfile)
	assert.Equal(t, "Northwind Labs", profile.Name)
	assert.NotEmpty(t, profile.TechStack)

	result = r.Invoke(context.Background(), "research_company", map[string]any{"name": "Totally Unknown GmbH"})
	require.True(t, result.OK)
	profile = result.Data.(CompanyProfile)
	assert.Contains(t, profile.Notes, "No dossier on file")
}

func TestDraftCoverLetter_IncludesHighlights(t *testing.T) {
	r := builtinRegistry(t)

	result := r.Invoke(context.Background(), "draft_cover_letter", map[string]any{
		"candidate_name": "Alex Doe",
		"role":           "Platform Engineer",
		"company":        "Driftwood",
		"highlights":     []string{"Built an internal developer platform", "Cut deploy times by 80%"},
	})
	require.True(t, result.OK)

	data := result.Data.(map[string]any)
	letter := data["letter"].(string)
	assert.Contains(t, letter, "Driftwood")
	assert.Contains(t, letter, "Platform Engineer")
	assert.Contains(t, letter, "Cut deploy times by 80%")
	assert.Contains(t, letter, "Alex Doe")
}

func TestSalaryResearch_SeniorityRaisesBand(t *testing.T) {
	r := builtinRegistry(t)

	mid := r.Invoke(context.Background(), "salary_research", map[string]any{
		"role": "backend engineer", "seniority": "mid",
	})
	senior := r.Invoke(context.Background(), "salary_research", map[string]any{
		"role": "backend engineer", "seniority": "senior",
	})
	require.True(t, mid.OK)
	require.True(t, senior.OK)

	midHigh := mid.Data.(map[string]any)["high"].(int)
	seniorHigh := senior.Data.(map[string]any)["high"].(int)
	assert.Greater(t, seniorHigh, midHigh)
}
