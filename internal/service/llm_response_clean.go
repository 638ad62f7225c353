package service

import (
	"regexp"
	"strings"
)

var (
	fenceStart = regexp.MustCompile("(?s)^\\s*```[a-zA-Z0-9_-]*\\s*\n")
	fenceEnd   = regexp.MustCompile("(?s)\n\\s*```\\s*$")
)

// cleanAssistantReply quita BOM y un bloque ``` que envuelva toda la respuesta.
func cleanAssistantReply(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\uFEFF")

	if fenceStart.MatchString(s) && fenceEnd.MatchString(s) {
		s = fenceStart.ReplaceAllString(s, "")
		s = fenceEnd.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
