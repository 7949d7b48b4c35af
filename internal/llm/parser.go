package llm

import "strings"

// CleanReply strips markdown fences and any prose around the outermost JSON
// object in a model reply. Replies with no object are returned trimmed.
func CleanReply(content string) string {
	content = cleanMarkdownWrapper(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return content
	}
	return content[start : end+1]
}

// cleanMarkdownWrapper removes ```json ... ``` fences.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if nl := strings.Index(content, "\n"); nl != -1 {
		// Drop the language tag line.
		if tag := strings.TrimSpace(content[:nl]); !strings.Contains(tag, "{") {
			content = content[nl+1:]
		}
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
