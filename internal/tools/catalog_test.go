package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsFixed(t *testing.T) {
	defs := Catalog()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{AddTask, ListTasks, CompleteTask, UpdateTask, DeleteTask}, names)

	// Mutating the copy must not leak into later calls.
	defs[1].Parameters[0].Enum[0] = "everything"
	again, ok := Lookup(ListTasks)
	require.True(t, ok)
	assert.Equal(t, "all", again.Parameters[0].Enum[0])

	_, ok = Lookup("drop_database")
	assert.False(t, ok)
}

func TestCatalogHasNoIdentityParameters(t *testing.T) {
	for _, def := range Catalog() {
		for _, p := range def.Parameters {
			_, isIdentity := identityKeys[normalizeKey(p.Name)]
			assert.False(t, isIdentity, "%s exposes %s", def.Name, p.Name)
		}
	}
}

func TestDeleteTaskSchemaRequiresConfirm(t *testing.T) {
	def, ok := Lookup(DeleteTask)
	require.True(t, ok)

	schema := def.JSONSchema()
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []string{"task_id", "confirm"}, schema["required"])

	props := schema["properties"].(map[string]any)
	confirm := props["confirm"].(map[string]any)
	assert.Equal(t, "boolean", confirm["type"])

	list, _ := Lookup(ListTasks)
	listSchema := list.JSONSchema()
	_, hasRequired := listSchema["required"]
	assert.False(t, hasRequired)
	status := listSchema["properties"].(map[string]any)["status"].(map[string]any)
	assert.Equal(t, "all", status["default"])
	assert.Equal(t, []string{"all", "pending", "completed"}, status["enum"])
}

func TestSpecsMatchCatalog(t *testing.T) {
	specs := Specs()
	require.Len(t, specs, len(Catalog()))
	assert.Equal(t, AddTask, specs[0].Name)
	assert.NotEmpty(t, specs[0].Description)
	assert.Equal(t, "object", specs[0].Parameters["type"])
}
