package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/ewrenn/greenie/internal/session"
	"github.com/ewrenn/greenie/internal/store"
)

func fixedNow() time.Time {
	return time.Date(2025, 8, 27, 13, 4, 5, 0, time.UTC)
}

func TestAssembleSectionOrder(t *testing.T) {
	info, err := CurrentTime("Europe/London", fixedNow)
	if err != nil {
		t.Fatalf("CurrentTime() error = %v", err)
	}

	got := Assemble(Inputs{
		Message:       "how do I reconnect?",
		Time:          &info,
		IncludeSystem: true,
		AssistantName: "Greenie",
		Topic:         "VPN",
		Knowledge:     []store.KnowledgeEntry{{Name: "VPN", Description: "VPN setup help"}},
		Memories:      []string{"user works remotely"},
		History: []session.Turn{
			{Role: session.RoleUser, Text: "hi"},
			{Role: session.RoleAssistant, Text: "hello"},
		},
	})

	order := []string{
		"Time:\n",
		"System:\n",
		"Current topic: VPN\n",
		"Knowledge:\n- VPN: VPN setup help\n",
		"Memories:\n- user works remotely\n",
		"Recent conversation:\nuser: hi\nassistant: hello\n",
		"how do I reconnect?",
	}
	pos := -1
	for _, marker := range order {
		idx := strings.Index(got, marker)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", marker, got)
		}
		if idx <= pos {
			t.Fatalf("section %q out of order at %d (prev %d):\n%s", marker, idx, pos, got)
		}
		pos = idx
	}
	if !strings.HasSuffix(got, "how do I reconnect?") {
		t.Fatalf("user message is not last:\n%s", got)
	}
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	got := Assemble(Inputs{Message: "hi"})
	if got != "hi" {
		t.Fatalf("bare assembly = %q, want just the message", got)
	}

	for _, banned := range []string{"Time:", "System:", "Current topic:", "Knowledge:", "Memories:", "Recent conversation:"} {
		if strings.Contains(got, banned) {
			t.Fatalf("empty section %q leaked into prompt", banned)
		}
	}
}

func TestAssembleIdentityFallback(t *testing.T) {
	got := Assemble(Inputs{Message: "hi", IncludeSystem: true, AssistantName: "Greenie"})
	want := "System:\n- Greenie: an AI assistant that is witty, intelligent, and supportive.\n\nhi"
	if got != want {
		t.Fatalf("fallback identity prompt = %q, want %q", got, want)
	}
}

func TestAssembleIdentityFromKnowledge(t *testing.T) {
	identity := []store.KnowledgeEntry{{Name: "Greenie voice", Description: "dry humour, short sentences"}}
	got := Assemble(Inputs{Message: "hi", IncludeSystem: true, AssistantName: "Greenie", Identity: identity})
	if !strings.Contains(got, "System:\n- Greenie voice: dry humour, short sentences\n") {
		t.Fatalf("identity entries not rendered:\n%s", got)
	}
	if strings.Contains(got, "witty, intelligent, and supportive") {
		t.Fatalf("fallback identity used despite entries:\n%s", got)
	}
}

func TestSelectIdentity(t *testing.T) {
	entries := []store.KnowledgeEntry{
		{Name: "VPN", Description: "help", Keywords: []string{"network"}},
		{Name: "Tone", Description: "be kind", Keywords: []string{"Personality"}},
		{Name: "Greenie basics", Description: "who I am", Keywords: nil},
		{Name: "Self", Description: "x", Keywords: []string{"identity", "personality"}},
	}
	got := SelectIdentity(entries, "Greenie")
	if len(got) != 3 {
		t.Fatalf("SelectIdentity returned %d entries, want 3: %+v", len(got), got)
	}
	for _, e := range got {
		if e.Name == "VPN" {
			t.Fatalf("non-identity entry selected: %+v", e)
		}
	}
}

func TestCurrentTimeFormats(t *testing.T) {
	info, err := CurrentTime("Europe/London", fixedNow)
	if err != nil {
		t.Fatalf("CurrentTime() error = %v", err)
	}
	// August in London is BST (UTC+1).
	if info.HumanShort != "Wed 27 Aug 2025, 14:04" {
		t.Fatalf("HumanShort = %q", info.HumanShort)
	}
	if info.ISO != "2025-08-27T14:04:05+01:00" {
		t.Fatalf("ISO = %q", info.ISO)
	}
	if info.Zone != "Europe/London" {
		t.Fatalf("Zone = %q", info.Zone)
	}
}

func TestCurrentTimeBadZone(t *testing.T) {
	if _, err := CurrentTime("Nowhere/Imaginary", fixedNow); err == nil {
		t.Fatalf("CurrentTime should fail for unknown zone")
	}
}
