package topic

import "regexp"

// Explicit topic-change commands. First match wins; the captured remainder
// becomes the topic.
var setPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:change topic to|switch to|focus on)\s+(.+)`),
	regexp.MustCompile(`(?i)(?:let(?:'s| us) talk about|talk about|now about|now let's talk about|discuss)\s+(.+)`),
	regexp.MustCompile(`(?i)^topic:\s*(.+)`),
}
