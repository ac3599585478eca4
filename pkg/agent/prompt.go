package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/models"
)

// toolsPlaceholder in an agent's system prompt is replaced with the
// rendered tool list.
const toolsPlaceholder = "{{TOOLS}}"

const protocolInstructions = `
Respond with exactly one JSON object per message, nothing else.

To call a tool:
{"thought": "why this tool", "tool": "tool_name", "args": {...}}

To give your final answer:
{"output": "your answer", "confidence": 0.0-1.0, "rationale": "one sentence", "fields": {...}}`

const forcedConclusionPrompt = `You have used all your tool rounds. Produce your final answer now as a JSON object:
{"output": "...", "confidence": 0.0-1.0, "rationale": "...", "fields": {...}}
Do not call any more tools.`

const repairPrompt = `Your last message was not a single valid JSON object in the required format. Reply again with exactly one JSON object and nothing else.`

// buildSystemPrompt renders the agent's system prompt: tool list spliced
// in, protocol appended.
func buildSystemPrompt(exec *Execution) string {
	prompt := exec.Config.SystemPrompt
	rendered := exec.Tools.RenderList(exec.Config.Tools)
	if rendered == "" {
		rendered = "(no tools available; answer from knowledge)"
	}
	prompt = strings.ReplaceAll(prompt, toolsPlaceholder, rendered)
	return prompt + "\n" + protocolInstructions
}

// buildMessages assembles the initial conversation: history tail, shared
// context from prior agents, then the task brief.
func buildMessages(exec *Execution) []llm.Message {
	var messages []llm.Message

	for _, msg := range exec.History {
		role := llm.RoleUser
		if msg.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}

	var task strings.Builder
	if shared := renderShared(exec.Shared); shared != "" {
		task.WriteString(shared)
		task.WriteString("\n")
	}
	task.WriteString("Task: ")
	task.WriteString(exec.Brief)
	for _, att := range exec.Attachments {
		fmt.Fprintf(&task, "\n\nAttachment %q:\n%s", att.Name, att.Content)
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: task.String()})
}

// renderShared summarizes prior agents' reports and extracted entities for
// the next agent in the pipeline.
func renderShared(shared *Shared) string {
	if shared == nil {
		return ""
	}

	var sb strings.Builder
	if extracted := shared.Extracted(); len(extracted) > 0 {
		if data, err := json.Marshal(extracted); err == nil {
			fmt.Fprintf(&sb, "Known context: %s\n", data)
		}
	}

	reports := shared.Reports()
	if len(reports) > 0 {
		sb.WriteString("Prior agent findings:\n")
		for _, r := range reports {
			if r.Failed {
				fmt.Fprintf(&sb, "- %s: FAILED (%s)\n", r.AgentName, r.ErrorKind)
				continue
			}
			fmt.Fprintf(&sb, "- %s (confidence %.2f): %s\n", r.AgentName, r.Confidence, r.Output)
		}
	}
	return sb.String()
}

// renderObservation formats a tool result as the next user message.
func renderObservation(toolName string, result any) string {
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", result))
	}
	return fmt.Sprintf("Observation from %s:\n%s", toolName, data)
}
