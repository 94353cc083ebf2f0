package gateway

import (
	"context"
	"math"

	"github.com/Shopify/go-lua"

	"github.com/aretw0/datum/pkg/domain"
)

// NewSandbox creates a Lua state with only the pure standard libraries
// loaded. No os, io, package or debug access: the host table registered
// by Bind is the only way out of the sandbox.
func NewSandbox() *lua.State {
	l := lua.NewState()
	libs := []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "math", Function: lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	// The base library registers file loaders; without these the state
	// has no filesystem reach at all.
	for _, name := range []string{"dofile", "loadfile"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	return l
}

// Bind registers the host capability table as the global "host" in l.
// When targets is non-empty, host.selected() returns those elements
// instead of the document selection, so a caller can scope a script to
// an explicit element set.
func (g *Gateway) Bind(l *lua.State, ctx context.Context, targets []domain.ElementID) {
	fns := []lua.RegistryFunction{
		{Name: "selected", Function: func(l *lua.State) int {
			refs, err := g.selectedOrTargets(ctx, targets)
			if err != nil {
				lua.Errorf(l, "selected: %s", err.Error())
			}
			pushRefs(l, refs)
			return 1
		}},
		{Name: "by_category", Function: func(l *lua.State) int {
			category := lua.CheckString(l, 1)
			refs, err := g.ElementsByCategory(ctx, category)
			if err != nil {
				lua.Errorf(l, "by_category: %s", err.Error())
			}
			pushRefs(l, refs)
			return 1
		}},
		{Name: "by_type", Function: func(l *lua.State) int {
			typeName := lua.CheckString(l, 1)
			refs, err := g.ElementsByType(ctx, typeName)
			if err != nil {
				lua.Errorf(l, "by_type: %s", err.Error())
			}
			pushRefs(l, refs)
			return 1
		}},
		{Name: "parameters", Function: func(l *lua.State) int {
			id := lua.CheckString(l, 1)
			params, err := g.ElementParameters(ctx, domain.ElementID(id))
			if err != nil {
				lua.Errorf(l, "parameters: %s", err.Error())
			}
			l.NewTable()
			for i, p := range params {
				l.NewTable()
				l.PushString(p.Name)
				l.SetField(-2, "name")
				pushValue(l, p.Value)
				l.SetField(-2, "value")
				l.PushBoolean(p.ReadOnly)
				l.SetField(-2, "read_only")
				l.RawSetInt(-2, i+1)
			}
			return 1
		}},
		{Name: "set_parameter", Function: func(l *lua.State) int {
			id := lua.CheckString(l, 1)
			name := lua.CheckString(l, 2)
			value := toValue(l, 3)
			if err := g.SetElementParameter(ctx, domain.ElementID(id), name, value); err != nil {
				lua.Errorf(l, "set_parameter: %s", err.Error())
			}
			return 0
		}},
		{Name: "create_instance", Function: func(l *lua.State) int {
			lua.CheckType(l, 1, lua.TypeTable)
			spec, err := specFromTable(l, 1)
			if err != nil {
				lua.Errorf(l, "create_instance: %s", err.Error())
			}
			id, err := g.CreateInstance(ctx, spec)
			if err != nil {
				lua.Errorf(l, "create_instance: %s", err.Error())
			}
			l.PushString(string(id))
			return 1
		}},
		{Name: "delete", Function: func(l *lua.State) int {
			id := lua.CheckString(l, 1)
			if err := g.DeleteElement(ctx, domain.ElementID(id)); err != nil {
				lua.Errorf(l, "delete: %s", err.Error())
			}
			return 0
		}},
		{Name: "message", Function: func(l *lua.State) int {
			title := lua.CheckString(l, 1)
			body := lua.CheckString(l, 2)
			if err := g.ShowMessage(ctx, title, body); err != nil {
				lua.Errorf(l, "message: %s", err.Error())
			}
			return 0
		}},
	}
	l.NewTable()
	lua.SetFunctions(l, fns, 0)
	l.SetGlobal("host")
}

func (g *Gateway) selectedOrTargets(ctx context.Context, targets []domain.ElementID) ([]domain.ElementRef, error) {
	if len(targets) == 0 {
		return g.SelectedElements(ctx)
	}
	refs := make([]domain.ElementRef, 0, len(targets))
	for _, id := range targets {
		ref, err := g.Element(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func pushRefs(l *lua.State, refs []domain.ElementRef) {
	l.NewTable()
	for i, ref := range refs {
		l.NewTable()
		l.PushString(string(ref.ID))
		l.SetField(-2, "id")
		l.PushString(ref.Category)
		l.SetField(-2, "category")
		l.PushString(ref.TypeName)
		l.SetField(-2, "type")
		l.PushString(ref.Name)
		l.SetField(-2, "name")
		l.RawSetInt(-2, i+1)
	}
}

func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushInteger(int(val))
	case float64:
		l.PushNumber(val)
	case string:
		l.PushString(val)
	case domain.Point3D:
		l.NewTable()
		l.PushNumber(val.X)
		l.SetField(-2, "x")
		l.PushNumber(val.Y)
		l.SetField(-2, "y")
		l.PushNumber(val.Z)
		l.SetField(-2, "z")
	case []any:
		l.NewTable()
		for i, item := range val {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.NewTable()
		for k, item := range val {
			pushValue(l, item)
			l.SetField(-2, k)
		}
	default:
		l.PushNil()
	}
}

func toValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return normalizeNumber(n)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, toValue(l, -1))
			l.Pop(1)
		}
		return result
	}

	out := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = toValue(l, -1)
		}
		l.Pop(1)
	}
	return out
}

func tableField(l *lua.State, index int, key string) any {
	index = l.AbsIndex(index)
	l.Field(index, key)
	v := toValue(l, -1)
	l.Pop(1)
	return v
}

func specFromTable(l *lua.State, index int) (domain.InstanceSpec, error) {
	spec := domain.InstanceSpec{
		Parameters: map[string]any{},
	}
	if s, err := domain.AsString(tableField(l, index, "category")); err == nil {
		spec.Category = s
	}
	if s, err := domain.AsString(tableField(l, index, "type")); err == nil {
		spec.TypeName = s
	}
	if s, err := domain.AsString(tableField(l, index, "name")); err == nil {
		spec.Name = s
	}
	if loc := tableField(l, index, "location"); loc != nil {
		pt, err := domain.AsPoint(loc)
		if err != nil {
			return spec, err
		}
		spec.Location = pt
	}
	if params, ok := tableField(l, index, "parameters").(map[string]any); ok {
		spec.Parameters = params
	}
	return spec, nil
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
