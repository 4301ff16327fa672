// Package prompt builds the system instruction handed to the language model:
// a fixed platform preamble plus a plain-text listing of public projects.
package prompt

import (
	"fmt"
	"strings"

	"showchat/internal/storage"
)

const preamble = `You are the assistant for a student project showcase platform.
Students publish projects with media, tags and comments, and visitors browse them.
Answer questions about the showcased projects listed below. Be concise and friendly.
If a question is unrelated to the platform or its projects, say so politely.`

// BuildSystemPrompt formats the instruction for one chat turn. extraContext
// is optional client-provided context appended verbatim after the project
// list.
func BuildSystemPrompt(projects []storage.Project, extraContext string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nPublic projects:\n")

	if len(projects) == 0 {
		b.WriteString("(no public projects yet)\n")
	}
	for _, p := range projects {
		b.WriteString(formatProject(p))
		b.WriteByte('\n')
	}

	if s := strings.TrimSpace(extraContext); s != "" {
		b.WriteString("\nAdditional context:\n")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

func formatProject(p storage.Project) string {
	line := fmt.Sprintf("- %s by %s", strings.TrimSpace(p.Title), orUnknown(p.Author))
	if s := strings.TrimSpace(p.Summary); s != "" {
		line += ": " + s
	}
	if tags := strings.TrimSpace(p.Tags); tags != "" {
		line += fmt.Sprintf(" [%s]", tags)
	}
	return line
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown author"
	}
	return strings.TrimSpace(s)
}
