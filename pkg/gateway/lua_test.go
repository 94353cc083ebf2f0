package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shopify/go-lua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum/pkg/domain"
)

func runLua(t *testing.T, g *Gateway, targets []domain.ElementID, source string) error {
	t.Helper()
	l := NewSandbox()
	g.Bind(l, context.Background(), targets)
	return lua.DoString(l, source)
}

func TestLua_SandboxHasNoSystemAccess(t *testing.T) {
	g, _ := newTestGateway(t)

	for _, global := range []string{"os", "io", "require", "dofile", "loadfile"} {
		err := runLua(t, g, nil, "if "+global+" ~= nil then error('leaked') end")
		assert.NoError(t, err, "global %q must not exist in the sandbox", global)
	}

	// The pure libraries stay available.
	err := runLua(t, g, nil, `
		if string.upper("a") ~= "A" then error("string missing") end
		if math.floor(1.5) ~= 1 then error("math missing") end
		local x = {}
		table.insert(x, 1)
		if #x ~= 1 then error("table missing") end
	`)
	assert.NoError(t, err)
}

func TestLua_SandboxCannotExecuteFiles(t *testing.T) {
	g, host := newTestGateway(t)

	path := filepath.Join(t.TempDir(), "escape.lua")
	require.NoError(t, os.WriteFile(path, []byte(`host.message("escaped", "from disk")`), 0o644))

	err := runLua(t, g, nil, `dofile("`+path+`")`)
	require.Error(t, err)
	assert.Empty(t, host.Messages())

	err = runLua(t, g, nil, `loadfile("`+path+`")`)
	require.Error(t, err)
}

func TestLua_SelectedAndParameters(t *testing.T) {
	g, host := newTestGateway(t)

	err := runLua(t, g, nil, `
		local sel = host.selected()
		if #sel ~= 1 then error("expected one selected element") end
		if sel[1].id ~= "wall-1" then error("wrong id: " .. tostring(sel[1].id)) end
		if sel[1].category ~= "Walls" then error("wrong category") end

		local found = false
		for _, p in ipairs(host.parameters(sel[1].id)) do
			if p.name == "Height" and p.value == 9 then found = true end
		end
		if not found then error("height parameter missing") end
	`)
	require.NoError(t, err)
	_ = host
}

func TestLua_TargetsOverrideSelection(t *testing.T) {
	g, host := newTestGateway(t)
	host.SeedElement(domain.ElementRef{ID: "wall-2", Category: "Walls", TypeName: `Generic - 8"`, Name: "South wall"})

	err := runLua(t, g, []domain.ElementID{"wall-2"}, `
		local sel = host.selected()
		if #sel ~= 1 or sel[1].id ~= "wall-2" then error("targets not honored") end
	`)
	require.NoError(t, err)
}

func TestLua_MutationsFlowThroughGateway(t *testing.T) {
	g, host := newTestGateway(t)

	err := runLua(t, g, nil, `
		host.set_parameter("wall-1", "Height", 10.5)
		local id = host.create_instance({
			category = "Walls",
			type = 'Generic - 8"',
			name = "Script wall",
			location = {x = 0, y = 10, z = 0},
			parameters = {Height = 8},
		})
		if id == nil or id == "" then error("no id returned") end
		host.message("done", "created " .. id)
	`)
	require.NoError(t, err)

	ctx := context.Background()
	params, err := g.ElementParameters(ctx, "wall-1")
	require.NoError(t, err)
	var height any
	for _, p := range params {
		if p.Name == "Height" {
			height = p.Value
		}
	}
	assert.Equal(t, 10.5, height)

	walls, err := host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	assert.Len(t, walls, 2)

	msgs := host.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "done", msgs[0].Title)
}

func TestLua_CapabilityErrorSurfacesAsLuaError(t *testing.T) {
	g, _ := newTestGateway(t)

	err := runLua(t, g, nil, `host.delete("no-such-element")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete")
}

func TestLua_ReadOnlyParameterRejected(t *testing.T) {
	g, _ := newTestGateway(t)

	err := runLua(t, g, nil, `host.set_parameter("wall-1", "Area", 9000)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}
