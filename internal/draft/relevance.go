package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// relevanceSnippetCap bounds the per-thread snippet shown to the
	// model during relevance ranking.
	relevanceSnippetCap = 200

	// relevanceMaxTokens is plenty for an index array.
	relevanceMaxTokens = 256
)

// relevanceSystemPrompt asks the model for a bare JSON index array.
const relevanceSystemPrompt = `You are an expert email assistant that analyzes conversation threads.

Your task: Given a user's email goal and a list of conversation threads, identify which threads are most relevant to achieving that goal.

Return ONLY a JSON array of thread indices, ordered by relevance (most relevant first).
Example: [2, 5, 0]

If no threads are relevant, return an empty array: []`

// indexArrayRE extracts the first JSON integer array from free-form
// model output.
var indexArrayRE = regexp.MustCompile(`\[[\d,\s]*\]`)

// FilterThreadsByGoal ranks threads by relevance to the goal, most
// relevant first. Model failure or unparseable output degrades to the
// unfiltered listing rather than an error: a bad ranking call should
// never hide the mailbox.
func FilterThreadsByGoal(ctx context.Context, client llm.Client,
	threads []thread.Thread, emailGoal string,
	log *slog.Logger) []thread.Thread {

	if log == nil {
		log = slog.Default()
	}
	if len(threads) == 0 || strings.TrimSpace(emailGoal) == "" {
		return threads
	}

	resp, err := client.Complete(ctx, llm.Request{
		System:    relevanceSystemPrompt,
		Prompt:    buildRelevancePrompt(threads, emailGoal),
		MaxTokens: relevanceMaxTokens,
	})
	if err != nil {
		log.WarnContext(ctx, "Relevance ranking failed, keeping "+
			"all threads", "err", err)
		return threads
	}

	indices, ok := parseIndexArray(resp)
	if !ok {
		log.InfoContext(ctx, "No index array in ranking response, "+
			"keeping all threads")
		return threads
	}

	var (
		ranked []thread.Thread
		seen   = make(map[int]bool)
	)
	for _, idx := range indices {
		if idx < 0 || idx >= len(threads) || seen[idx] {
			continue
		}
		seen[idx] = true
		ranked = append(ranked, threads[idx])
	}

	log.DebugContext(ctx, "Ranked threads by goal",
		"total", len(threads), "relevant", len(ranked))

	return ranked
}

// buildRelevancePrompt renders one summary line per thread.
func buildRelevancePrompt(threads []thread.Thread, emailGoal string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Email Goal:\n%s\n\nConversation Threads:\n",
		emailGoal)

	for idx, t := range threads {
		participants := t.Participants()
		if len(participants) > 3 {
			participants = participants[:3]
		}

		snippet := strings.Join(
			strings.Fields(t.Last().Body), " ",
		)
		if len(snippet) > relevanceSnippetCap {
			snippet = snippet[:relevanceSnippetCap]
		}

		fmt.Fprintf(&b,
			"Index %d: Subject: %q | Emails: %d | "+
				"Participants: %s | Snippet: %s\n",
			idx, t.Subject, len(t.Messages),
			strings.Join(participants, ", "), snippet,
		)
	}

	b.WriteString("\nReturn the indices of threads relevant to this " +
		"goal, ordered by relevance.")

	return b.String()
}

// parseIndexArray pulls the first integer array out of raw. The second
// return is false when no array is present at all; an empty array is a
// valid "nothing is relevant" answer.
func parseIndexArray(raw string) ([]int, bool) {
	match := indexArrayRE.FindString(raw)
	if match == "" {
		return nil, false
	}

	var indices []int
	if err := json.Unmarshal([]byte(match), &indices); err != nil {
		return nil, false
	}

	return indices, true
}
