// Package luaengine embeds a Lua virtual machine to evaluate the
// ComplexFilter predicate against a single candidate document, the way a
// server-side script would evaluate it inside the datastore itself. The
// candidate's fields are handed to the script as a table; the script
// returns a boolean accept/reject decision plus an optional rejection
// reason for diagnostics.
package luaengine

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/bookn/propertysearch/apperr"
)

// FilterParams is the set of scalar bounds the complex-filter script
// checks a candidate against. Zero-valued fields mean "no constraint".
type FilterParams struct {
	City          string
	TypeID        string
	TypeName      string
	MinPrice      float64
	MaxPrice      float64
	HasPriceRange bool
	MinRating     float64
	RequiredAmenities []string
	RequiredServices  []string
	DynamicFields     map[string]string
}

// complexFilterScript mirrors spec §4.6's ComplexFilter predicate: reject
// on city, type, price range, rating, dynamic fields, amenities, services.
const complexFilterScript = `
local function contains(list, value)
  for _, v in ipairs(list) do
    if v == value then return true end
  end
  return false
end

function accept(doc, params)
  if params.city ~= "" and doc.city ~= params.city then
    return false, "city"
  end
  if params.type_id ~= "" and doc.property_type_id ~= params.type_id and doc.property_type_name ~= params.type_name then
    return false, "type"
  end
  if params.has_price_range and (doc.min_price < params.min_price or doc.min_price > params.max_price) then
    return false, "price"
  end
  if params.min_rating > 0 and doc.average_rating < params.min_rating then
    return false, "rating"
  end
  for field, value in pairs(params.dynamic_fields) do
    if doc.dynamic_fields[field] ~= value then
      return false, "dynamic_field"
    end
  end
  for _, amenity in ipairs(params.required_amenities) do
    if not contains(doc.amenity_ids, amenity) then
      return false, "amenity"
    end
  end
  for _, service in ipairs(params.required_services) do
    if not contains(doc.service_ids, service) then
      return false, "service"
    end
  end
  return true, ""
end
`

// Engine evaluates the complex-filter predicate against candidate
// documents using a fresh Lua state per call, serialized by a mutex
// (gopher-lua states are not safe for concurrent use).
type Engine struct {
	mu sync.Mutex
}

// New constructs an Engine after checking that the predicate script
// compiles, failing fast if it does not parse; each evaluation loads the
// script again into its own fresh state.
func New() (*Engine, error) {
	state := lua.NewState()
	defer state.Close()
	if err := state.DoString(complexFilterScript); err != nil {
		return nil, apperr.Wrap(apperr.ScriptError, "compile complex filter script", err)
	}
	return &Engine{}, nil
}

// CandidateDoc is the subset of a PropertyDocument the script inspects.
type CandidateDoc struct {
	City             string
	PropertyTypeID   string
	PropertyTypeName string
	MinPrice         float64
	AverageRating    float64
	AmenityIDs       []string
	ServiceIDs       []string
	DynamicFields    map[string]string
}

// Accept runs the compiled predicate against one candidate document and
// the current filter params, returning whether it should be kept and, if
// not, a short rejection reason.
func (e *Engine) Accept(doc CandidateDoc, params FilterParams) (bool, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(complexFilterScript); err != nil {
		return false, "", apperr.Wrap(apperr.ScriptError, "load complex filter script", err)
	}

	fn := L.GetGlobal("accept")
	if fn.Type() != lua.LTFunction {
		return false, "", apperr.New(apperr.ScriptError, "complex filter script did not define accept()")
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, toLuaDoc(L, doc), toLuaParams(L, params)); err != nil {
		return false, "", apperr.Wrap(apperr.ScriptError, "evaluate complex filter", err)
	}

	reason := L.Get(-1)
	accepted := L.Get(-2)
	L.Pop(2)

	ok, isBool := accepted.(lua.LBool)
	if !isBool {
		return false, "", apperr.New(apperr.ScriptError, "complex filter script returned non-boolean")
	}
	return bool(ok), reason.String(), nil
}

func toLuaDoc(L *lua.LState, doc CandidateDoc) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("city", lua.LString(doc.City))
	t.RawSetString("property_type_id", lua.LString(doc.PropertyTypeID))
	t.RawSetString("property_type_name", lua.LString(doc.PropertyTypeName))
	t.RawSetString("min_price", lua.LNumber(doc.MinPrice))
	t.RawSetString("average_rating", lua.LNumber(doc.AverageRating))
	t.RawSetString("amenity_ids", stringsToLuaArray(L, doc.AmenityIDs))
	t.RawSetString("service_ids", stringsToLuaArray(L, doc.ServiceIDs))
	t.RawSetString("dynamic_fields", stringMapToLuaTable(L, doc.DynamicFields))
	return t
}

func toLuaParams(L *lua.LState, p FilterParams) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("city", lua.LString(p.City))
	t.RawSetString("type_id", lua.LString(p.TypeID))
	t.RawSetString("type_name", lua.LString(p.TypeName))
	t.RawSetString("min_price", lua.LNumber(p.MinPrice))
	t.RawSetString("max_price", lua.LNumber(p.MaxPrice))
	t.RawSetString("has_price_range", lua.LBool(p.HasPriceRange))
	t.RawSetString("min_rating", lua.LNumber(p.MinRating))
	t.RawSetString("required_amenities", stringsToLuaArray(L, p.RequiredAmenities))
	t.RawSetString("required_services", stringsToLuaArray(L, p.RequiredServices))
	t.RawSetString("dynamic_fields", stringMapToLuaTable(L, p.DynamicFields))
	return t
}

func stringsToLuaArray(L *lua.LState, values []string) *lua.LTable {
	t := L.NewTable()
	for _, v := range values {
		t.Append(lua.LString(v))
	}
	return t
}

func stringMapToLuaTable(L *lua.LState, m map[string]string) *lua.LTable {
	t := L.NewTable()
	for k, v := range m {
		t.RawSetString(k, lua.LString(v))
	}
	return t
}
