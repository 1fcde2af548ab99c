// Package prompt assembles the enriched model prompt for one turn. Assembly
// is a pure, deterministic concatenation: every optional section either
// contributes its block or is omitted, and the section order never changes.
package prompt

import (
	"strings"

	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
)

// Inputs are the pre-gathered sections for one turn. Gathering is the
// caller's job (each source is fallible and degrades to an empty section);
// Assemble itself cannot fail.
type Inputs struct {
	Message string

	// Time is included when non-nil.
	Time *TimeInfo

	// IncludeSystem controls the persona block. Identity holds the
	// knowledge entries selected as identity/personality; when empty a
	// fixed fallback line keeps the model aware of its own name.
	IncludeSystem bool
	AssistantName string
	Identity      []store.KnowledgeEntry

	Topic     string
	Knowledge []store.KnowledgeEntry
	Memories  []string
	History   []session.Turn
}

// Assemble concatenates the sections in their fixed order, blank-line
// separated, with the raw user message last:
// time, system, topic, knowledge, memories, conversation, message.
func Assemble(in Inputs) string {
	var b strings.Builder

	if in.Time != nil {
		b.WriteString("Time:\n- ")
		b.WriteString(in.Time.HumanShort)
		b.WriteString(" (")
		b.WriteString(in.Time.Zone)
		b.WriteString(")\n- ")
		b.WriteString(in.Time.ISO)
		b.WriteString("\n\n")
	}

	if in.IncludeSystem {
		b.WriteString("System:\n")
		if len(in.Identity) > 0 {
			for _, e := range in.Identity {
				b.WriteString("- ")
				b.WriteString(e.Name)
				b.WriteString(": ")
				b.WriteString(e.Description)
				b.WriteString("\n")
			}
		} else {
			b.WriteString("- ")
			b.WriteString(fallbackIdentity(in.AssistantName))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if in.Topic != "" {
		b.WriteString("Current topic: ")
		b.WriteString(in.Topic)
		b.WriteString("\n\n")
	}

	if len(in.Knowledge) > 0 {
		b.WriteString("Knowledge:\n")
		for _, e := range in.Knowledge {
			b.WriteString("- ")
			b.WriteString(e.Name)
			b.WriteString(": ")
			b.WriteString(e.Description)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(in.Memories) > 0 {
		b.WriteString("Memories:\n")
		for _, m := range in.Memories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(in.History) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range in.History {
			b.WriteString(turn.Role)
			b.WriteString(": ")
			b.WriteString(turn.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(in.Message)
	return b.String()
}

func fallbackIdentity(name string) string {
	if name == "" {
		name = "Greenie"
	}
	return name + ": an AI assistant that is witty, intelligent, and supportive."
}

// SelectIdentity picks the knowledge entries that frame the assistant's
// identity: keyword "identity" or "personality" (case-insensitive), or a
// name starting with the assistant's proper name.
func SelectIdentity(entries []store.KnowledgeEntry, assistantName string) []store.KnowledgeEntry {
	prefix := strings.ToLower(assistantName)
	var out []store.KnowledgeEntry
	for _, e := range entries {
		if prefix != "" && strings.HasPrefix(strings.ToLower(e.Name), prefix) {
			out = append(out, e)
			continue
		}
		for _, kw := range e.Keywords {
			if k := strings.ToLower(kw); k == "identity" || k == "personality" {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
