package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaProbe struct{}

func (schemaProbe) Name() string        { return "probe" }
func (schemaProbe) Description() string { return "" }
func (schemaProbe) ReadOnly() bool      { return true }
func (schemaProbe) Schema() Schema {
	return Schema{Params: map[string]ParamSpec{
		"organization_id": {Type: "string", Required: true},
		"months":          {Type: "integer", Required: false},
		"rate":            {Type: "number", Required: false},
		"dry_run":         {Type: "boolean", Required: false},
	}}
}
func (schemaProbe) Execute(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestValidateArgsAccepts(t *testing.T) {
	err := ValidateArgs(schemaProbe{}, map[string]any{
		"organization_id": "org-1",
		"months":          float64(12), // JSON-число
		"rate":            1.5,
		"dry_run":         true,
	})
	assert.NoError(t, err)
}

func TestValidateArgsCollectsAllProblems(t *testing.T) {
	err := ValidateArgs(schemaProbe{}, map[string]any{
		"months": "twelve",
		"bogus":  1,
	})
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	// Все три проблемы за один раунд: агенту не нужно чинить по одной
	assert.Len(t, schemaErr.Problems, 3)
	assert.Contains(t, err.Error(), `missing required param "organization_id"`)
	assert.Contains(t, err.Error(), `param "months"`)
	assert.Contains(t, err.Error(), `unknown param "bogus"`)
}

func TestValidateArgsIntegerVsFloat(t *testing.T) {
	// 12.0 — целое в JSON-представлении
	assert.NoError(t, ValidateArgs(schemaProbe{}, map[string]any{
		"organization_id": "org-1",
		"months":          float64(12),
	}))

	// 12.5 целым не является
	err := ValidateArgs(schemaProbe{}, map[string]any{
		"organization_id": "org-1",
		"months":          12.5,
	})
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(schemaProbe{}))
	assert.Error(t, reg.Register(schemaProbe{}))

	tool, err := reg.Get("probe")
	require.NoError(t, err)
	assert.Equal(t, "probe", tool.Name())

	_, err = reg.Get("missing")
	assert.Error(t, err)
}
