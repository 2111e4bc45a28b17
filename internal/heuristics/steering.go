package heuristics

import (
	"fmt"
	"strings"
)

var intentGuidance = map[Intent]string{
	IntentAdd:      "The user most likely wants to create a task. Extract a short title and call add_task.",
	IntentList:     "The user most likely wants to see tasks. Call list_tasks with the status they mention, or all.",
	IntentUpdate:   "The user most likely wants to rename a task. Make sure you know which task before calling update_task.",
	IntentComplete: "The user most likely wants to mark a task done. Make sure you know which task before calling complete_task.",
	IntentDelete:   "The user most likely wants to delete a task. Identify it and get an explicit yes before calling delete_task with confirm=true.",
}

var languageNames = map[string]string{
	English: "English",
	Urdu:    "Urdu (Arabic script)",
}

// Steering renders the paragraph appended to the system instruction for one
// request.
func Steering(lang Language, intent Intent) string {
	var b strings.Builder

	primary := languageNames[lang.Primary]
	if primary == "" {
		primary = languageNames[English]
	}
	fmt.Fprintf(&b, "Reply in %s.", primary)
	if secondary, ok := languageNames[lang.Secondary]; ok {
		fmt.Fprintf(&b, " If the user writes in %s, you may answer in %s instead.", secondary, secondary)
	}
	b.WriteString(" Tool names and arguments stay in English; task titles keep the user's wording.")

	if guidance, ok := intentGuidance[intent]; ok {
		b.WriteString("\n")
		b.WriteString(guidance)
	}
	return b.String()
}
