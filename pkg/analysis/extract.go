package analysis

import (
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON pulls a JSON object out of model output. A ```json fenced
// block wins; otherwise the text from the first '{' to the last '}' is
// used; otherwise content is returned unchanged.
func ExtractJSON(content string) string {
	if m := fencedJSON.FindStringSubmatch(content); m != nil && m[1] != "" {
		return m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		return content[start : end+1]
	}
	return content
}
