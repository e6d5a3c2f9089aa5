package command

import "strings"

// triggerKeywords is the fixed operational-verb set: a tool approval whose
// name or arguments contain one of these (case-insensitive substring)
// spawns a tracked background job.
var triggerKeywords = []string{
	"scan",
	"deploy",
	"build",
	"backup",
	"sync",
	"migrate",
	"monitor",
	"analyze",
	"index",
}

func MatchesTrigger(toolName, arguments string) bool {
	haystack := strings.ToLower(toolName + " " + arguments)
	for _, kw := range triggerKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
