package heuristics

import (
	"regexp"
	"strings"
)

// Intent is a coarse guess at what the user wants done.
type Intent string

const (
	IntentAdd      Intent = "add"
	IntentList     Intent = "list"
	IntentUpdate   Intent = "update"
	IntentComplete Intent = "complete"
	IntentDelete   Intent = "delete"
	IntentUnknown  Intent = "unknown"
)

type pattern struct {
	intent Intent
	re     *regexp.Regexp
}

// First match wins. Destructive intents are checked first so "remove the
// new task" reads as a delete.
var englishPatterns = []pattern{
	{IntentDelete, regexp.MustCompile(`(?i)\b(delete|remove|cancel|drop)\b`)},
	{IntentComplete, regexp.MustCompile(`(?i)\b(complete|done|finished|mark\s+done|mark\s+complete)\b`)},
	{IntentUpdate, regexp.MustCompile(`(?i)\b(update|change|rename|edit|modify)\b`)},
	{IntentList, regexp.MustCompile(`(?i)\b(list|show|see|view|what\s+are|what's)\b`)},
	{IntentAdd, regexp.MustCompile(`(?i)\b(add|create|remember|new|make)\b`)},
}

type hint struct {
	intent Intent
	words  []string
}

// Urdu keywords are matched as substrings, in this order.
var urduHints = []hint{
	{IntentAdd, []string{"شامل", "بناؤ", "بناو", "یاد", "نیا"}},
	{IntentList, []string{"دکھاؤ", "دکھاو", "فہرست", "لسٹ", "سب"}},
	{IntentUpdate, []string{"بدلو", "تبدیل", "اپڈیٹ"}},
	{IntentComplete, []string{"مکمل", "ہوگیا", "ہو گئی", "ہوگئے", "ہو گئے", "done"}},
	{IntentDelete, []string{"حذف", "ڈیلیٹ", "مٹاؤ", "مٹاو", "ہٹا", "ہٹاؤ", "ہٹاو"}},
}

// DetectIntent runs the English patterns and then the Urdu hints, returning
// the first category that matches.
func DetectIntent(message string) Intent {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return IntentUnknown
	}

	for _, p := range englishPatterns {
		if p.re.MatchString(msg) {
			return p.intent
		}
	}
	for _, h := range urduHints {
		for _, w := range h.words {
			if strings.Contains(msg, w) {
				return h.intent
			}
		}
	}
	return IntentUnknown
}
