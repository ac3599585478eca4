package config

// BuiltinConfig holds the configuration that ships with the binary.
// User YAML merges on top (user overrides built-in).
type BuiltinConfig struct {
	Agents       map[string]*AgentConfig
	Intents      map[string]*IntentConfig
	LLMProviders map[string]*LLMProviderConfig

	// DefaultProvider is the provider used when an agent does not name one.
	DefaultProvider string
}

const scoutPrompt = `You are the Scout agent in the Kazi career platform.
Your job is job discovery and company research: find relevant openings,
research the most promising companies, and summarize the market.

Available tools:
{{TOOLS}}

Work step by step. Call tools to gather data before answering. When you have
enough information, answer with a JSON object:
{"output": "your findings", "confidence": 0.0-1.0, "rationale": "one sentence",
 "fields": {"companies": [...], "roles": [...]}}`

const matchPrompt = `You are the Match agent in the Kazi career platform.
Your job is fit analysis: parse job descriptions, compare them against the
candidate's resume, score ATS compatibility, and identify skill gaps.

Available tools:
{{TOOLS}}

Work step by step. Call tools to gather data before answering. When you have
enough information, answer with a JSON object:
{"output": "your analysis", "confidence": 0.0-1.0, "rationale": "one sentence",
 "fields": {"ats_score": 0-100, "verdict": "strong|moderate|weak"}}`

const forgePrompt = `You are the Forge agent in the Kazi career platform.
Your job is writing application materials: tailored cover letters and
rewritten resume bullets that match the target role.

Available tools:
{{TOOLS}}

Work step by step. Use prior agents' analysis from the shared context. When
done, answer with a JSON object:
{"output": "the materials", "confidence": 0.0-1.0, "rationale": "one sentence",
 "fields": {"deliverable": "cover_letter|resume|both"}}`

const coachPrompt = `You are the Coach agent in the Kazi career platform.
Your job is interview preparation: likely questions, talking points, and
strategic advice for the target role and company.

Available tools:
{{TOOLS}}

Work step by step. When done, answer with a JSON object:
{"output": "the preparation plan", "confidence": 0.0-1.0,
 "rationale": "one sentence", "fields": {"question_count": 0}}`

// GetBuiltinConfig returns the built-in agents, intents, and providers.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		DefaultProvider: "groq",
		Agents: map[string]*AgentConfig{
			"scout": {
				DisplayName:   "Scout",
				Role:          "Job discovery and company research",
				SystemPrompt:  scoutPrompt,
				Tools:         []string{"search_jobs", "research_company", "salary_research"},
				TrackedFields: []string{"companies", "roles"},
			},
			"match": {
				DisplayName:   "Match",
				Role:          "Skills analysis, JD parsing, and ATS scoring",
				SystemPrompt:  matchPrompt,
				Tools:         []string{"parse_jd", "score_ats"},
				TrackedFields: []string{"ats_score", "verdict"},
			},
			"forge": {
				DisplayName:   "Forge",
				Role:          "Cover letter and resume writing",
				SystemPrompt:  forgePrompt,
				Tools:         []string{"draft_cover_letter", "score_ats"},
				TrackedFields: []string{"deliverable"},
			},
			"coach": {
				DisplayName:   "Coach",
				Role:          "Interview preparation and coaching",
				SystemPrompt:  coachPrompt,
				Tools:         []string{"research_company"},
				TrackedFields: []string{},
			},
		},
		Intents: map[string]*IntentConfig{
			"job_search": {
				Agents:      []string{"scout"},
				Description: "User wants to find, search for, or discover jobs/roles/positions",
			},
			"analyze_match": {
				Agents:      []string{"match"},
				Description: "User wants to compare resume vs job description, check fit, or get ATS score",
			},
			"write_materials": {
				Agents:      []string{"match", "forge"},
				Description: "User wants a cover letter, resume rewrite, or application materials written",
				Negotiate:   true,
			},
			"interview_prep": {
				Agents:      []string{"coach"},
				Description: "User wants interview preparation, practice questions, or coaching",
			},
			"multi_step": {
				Agents:      []string{"scout", "match", "forge", "coach"},
				Description: "User wants end-to-end help landing a role",
				Negotiate:   true,
			},
			"general_chat": {
				Agents:      []string{},
				Description: "Greetings, general advice, or anything not needing a specialized agent",
			},
		},
		LLMProviders: map[string]*LLMProviderConfig{
			"groq": {
				Model:     "llama-3.3-70b-versatile",
				APIKeyEnv: "GROQ_API_KEY",
				BaseURL:   "https://api.groq.com/openai/v1",
			},
			"openai": {
				Model:     "gpt-4o-mini",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			"deepseek": {
				Model:     "deepseek-chat",
				APIKeyEnv: "DEEPSEEK_API_KEY",
				BaseURL:   "https://api.deepseek.com",
			},
		},
	}
}
