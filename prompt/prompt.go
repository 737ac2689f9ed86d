// Package prompt builds the system prompt for authenticity analysis.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout formats the current time in the prompt.
const TimeLayout = "2006-01-02 15:04:05"

// Options configures the system prompt.
type Options struct {
	Now       time.Time
	SourceURL string
	WebSearch bool
}

const searchRules = `

Core rules:
1. Thinking and search decisions (think out loud as you go):
   - If the claim depends on recent events (roughly the last 3 years), on niche facts you are unsure about, or the supplied information is insufficient, you must call web_search.
   - While thinking, state whether a search is needed, why, and which keywords you will search for.
2. Answer rules:
   - Prefer the material you found; cite it as [1] (URL).
   - Keep the structure clear and the wording plain.
   - List every reference you used.`

const verdictSchema = `

Decide whether the news is true and reply with strict JSON only (no markdown code fences), with these fields:

1. probability: (float between 0 and 1) the probability that the news is true.
2. type: (integer)
   - 1: most likely true (probability >= 0.8)
   - 2: partly false (0.2 < probability < 0.8)
   - 3: most likely false (probability <= 0.2)
3. explanation: (string) a short reason for the judgement.
4. analysis_points: (array) exactly 3 analysis points, each an object with:
   - "description": what was analysed
   - "status": "positive" (reliable) | "warning" (doubtful, needs checking) | "negative" (false)
   Cover these dimensions: reliability of the source, objectivity of the language, consistency between text and images or verification of the facts.
5. fake_parts: (array) only when type is 2 or 3, marking the false content. Each element is an object with:
   - "text": the exact false fragment, copied verbatim from the original so it can be located
   - "reason": why the fragment is false
6. search_references: (array, optional) when web search was used, the references, each an object with:
   - "title": the reference title
   - "url": the URL
   - "relevance": how it relates to the claim

Make sure the reply is a valid JSON string.`

// Build renders the system prompt.
func Build(opts Options) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional news authenticity checker. The current time is %s.\n", now.Format(TimeLayout))
	if opts.SourceURL != "" {
		fmt.Fprintf(&sb, "Analyse the text and images supplied by the user (source link: %s).", opts.SourceURL)
	} else {
		sb.WriteString("Analyse the text and images supplied by the user.")
	}
	if opts.WebSearch {
		sb.WriteString(searchRules)
	}
	sb.WriteString(verdictSchema)
	return sb.String()
}
