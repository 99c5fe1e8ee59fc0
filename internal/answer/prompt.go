package answer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DontKnow is the refusal the prompt demands when the sources cannot answer
// the question, and the fixed reply when no evidence is retrieved at all.
const DontKnow = "I don't know."

// buildPrompt lays out the numbered evidence blocks and the grounding rules
// that citation parsing and confidence scoring depend on.
func buildPrompt(question string, evidence []Evidence) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions using ONLY the provided website content.\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("1. Use ONLY information from the numbered sources below.\n")
	b.WriteString("2. Cite the source number for every claim, e.g. \"According to Source 1...\".\n")
	fmt.Fprintf(&b, "3. If the sources do not contain the answer, reply with exactly %q\n", DontKnow)
	b.WriteString("4. Do NOT use outside knowledge and do NOT guess beyond what the sources state.\n")
	b.WriteString("5. Quote directly from the sources when possible.\n\n")
	b.WriteString("WEBSITE CONTENT:\n")
	for i, ev := range evidence {
		fmt.Fprintf(&b, "[Source %d]\n", i+1)
		if ev.Chunk.SourceTitle != "" {
			fmt.Fprintf(&b, "Title: %s\n", ev.Chunk.SourceTitle)
		}
		fmt.Fprintf(&b, "URL: %s\n", ev.Chunk.SourceURL)
		fmt.Fprintf(&b, "Content: %s\n\n", ev.Chunk.Text)
	}
	fmt.Fprintf(&b, "USER QUESTION: %s\n\n", question)
	b.WriteString("Answer using ONLY the sources above and cite source numbers.")
	return b.String()
}

var (
	// citationRe matches "Source 3", "source #3", "[Source 3]" and list
	// forms like "Sources 1, 2 and 4".
	citationRe = regexp.MustCompile(`(?i)\bsources?\s+((?:#?\d+)(?:\s*(?:,|and|&)\s*#?\d+)*)`)
	numberRe   = regexp.MustCompile(`\d+`)
)

// parseCitations extracts the source numbers the response actually cites,
// deduplicated in first-appearance order. Numbers outside the presented
// evidence range are discarded.
func parseCitations(text string, evidence []Evidence) []Citation {
	var out []Citation
	seen := make(map[int]bool)
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		for _, num := range numberRe.FindAllString(m[1], -1) {
			k, err := strconv.Atoi(num)
			if err != nil || k < 1 || k > len(evidence) || seen[k] {
				continue
			}
			seen[k] = true
			ev := evidence[k-1]
			out = append(out, Citation{
				Source:  k,
				ChunkID: ev.Chunk.ID,
				URL:     ev.Chunk.SourceURL,
				Title:   ev.Chunk.SourceTitle,
			})
		}
	}
	return out
}

// isRefusal reports whether the model declined to answer per the prompt
// contract. Models tend to decorate the required phrase, so match loosely.
func isRefusal(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimLeft(t, `"'*`)
	for _, prefix := range []string{"i don't know", "i do not know", "i dont know"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
