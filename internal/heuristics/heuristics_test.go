package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		message   string
		want      string
	}{
		{"english baseline", "", "add a task called Buy milk", English},
		{"urdu script", "", "دودھ خریدنے کا کام شامل کرو", Urdu},
		{"explicit wins over script", "EN ", "دودھ خریدنا", English},
		{"explicit urdu for latin text", "ur", "add milk", Urdu},
		{"unsupported preference ignored", "fr", "bonjour", English},
		{"empty message", "", "", English},
		{"arabic extended-a", "", "task ࢢ", Urdu},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLanguage(tt.preferred, tt.message)
			assert.Equal(t, tt.want, got.Primary)
			assert.NotEqual(t, got.Primary, got.Secondary)
		})
	}
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"add a task called Buy milk", IntentAdd},
		{"show me my tasks", IntentList},
		{"what's pending?", IntentList},
		{"rename task 3 to Call mom", IntentUpdate},
		{"mark done the groceries", IntentComplete},
		{"please remove the new task", IntentDelete},
		{"delete task 7", IntentDelete},
		{"hello there", IntentUnknown},
		{"   ", IntentUnknown},
		{"میرے کام کی فہرست", IntentList},
		{"یہ کام حذف کرو", IntentDelete},
		{"کام مکمل ہوگیا", IntentComplete},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectIntent(tt.message), tt.message)
	}
}

func TestDetectIntentIsOrdered(t *testing.T) {
	// Both "add" and "delete" match; delete is checked first.
	assert.Equal(t, IntentDelete, DetectIntent("add then delete it"))
	// Word boundaries: "address" is not "add".
	assert.Equal(t, IntentUnknown, DetectIntent("my address"))
}

func TestSteering(t *testing.T) {
	s := Steering(ResolveLanguage("", "سب دکھاؤ"), IntentList)
	assert.Contains(t, s, "Reply in Urdu")
	assert.Contains(t, s, "list_tasks")

	s = Steering(Language{Primary: English, Secondary: Urdu}, IntentUnknown)
	assert.Contains(t, s, "Reply in English")
	assert.NotContains(t, s, "most likely")
}
