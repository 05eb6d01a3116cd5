package discovery

import (
	"fmt"
	"strings"
)

const maxExcludedInPrompt = 200

const systemPrompt = `You find active online communities (forums, Q&A sites, discussion boards, issue trackers) ` +
	`where people discuss a given topic. Only propose communities that publish threads publicly and ` +
	`show activity in the last month. For each community give its bare domain, one public URL that ` +
	`proves recent discussion of the topic, the forum software you believe it runs ` +
	`(discourse, phpbb, vbulletin, ips, vanilla, flarum, wp-forum, github, stackexchange or unknown), ` +
	`a one-sentence reason and a short activity hint. Never propose an excluded domain.`

var candidateFields = []string{"domain", "proof_url", "platform_guess", "reason", "activity_hint"}

// candidateSchema is the strict JSON schema for the discovery response.
func candidateSchema() map[string]any {
	props := make(map[string]any, len(candidateFields))
	for _, f := range candidateFields {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             candidateFields,
					"properties":           props,
				},
			},
		},
	}
}

func userPrompt(topic, language, region string, count int, excluded []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Return up to %d communities.\n", count)
	if language != "" {
		fmt.Fprintf(&b, "Preferred language: %s\n", language)
	}
	if region != "" {
		fmt.Fprintf(&b, "Preferred region: %s\n", region)
	}
	if len(excluded) > 0 {
		if len(excluded) > maxExcludedInPrompt {
			excluded = excluded[:maxExcludedInPrompt]
		}
		fmt.Fprintf(&b, "Excluded domains: %s\n", strings.Join(excluded, ", "))
	}
	return b.String()
}
