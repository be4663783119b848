package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// registerAPI installs the global "world" table. Every function acts on the
// command buffer of the hook currently running on v; structural changes are
// queued and applied by the partition after the hook returns.
func registerAPI(v *vm) {
	L := v.L
	api := L.NewTable()
	L.SetFuncs(api, map[string]lua.LGFunction{
		"map_id": func(L *lua.LState) int {
			L.Push(lua.LNumber(v.commands(L).MapID()))
			return 1
		},
		"instance_id": func(L *lua.LState) int {
			L.Push(lua.LNumber(v.commands(L).Partition().Instance))
			return 1
		},
		"tick": func(L *lua.LState) int {
			L.Push(lua.LNumber(v.commands(L).Tick()))
			return 1
		},
		"get": func(L *lua.LState) int {
			e, ok := v.commands(L).Lookup(lGUID(L, 1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(entityTable(L, e))
			return 1
		},
		"set_health": func(L *lua.LState) int {
			e, ok := v.commands(L).Lookup(lGUID(L, 1))
			if ok && e.Kind.IsUnit() && !e.Life.Dead {
				e.Fields.SetInt(object.UnitHealth, uint32(L.CheckInt(2)))
			}
			L.Push(lua.LBool(ok))
			return 1
		},
		"spawn": func(L *lua.LState) int {
			rec, err := spawnRecord(L.CheckTable(1))
			if err != "" {
				L.ArgError(1, err)
				return 0
			}
			v.commands(L).Spawn(rec)
			return 0
		},
		"despawn": func(L *lua.LState) int {
			v.commands(L).Despawn(lGUID(L, 1), L.OptBool(2, false))
			return 0
		},
		"relocate": func(L *lua.LState) int {
			pos := object.Position{
				X: float32(L.CheckNumber(2)),
				Y: float32(L.CheckNumber(3)),
				Z: float32(L.OptNumber(4, 0)),
				O: float32(L.OptNumber(5, 0)),
			}
			v.commands(L).Relocate(lGUID(L, 1), pos)
			return 0
		},
		"set_active": func(L *lua.LState) int {
			v.commands(L).SetActive(lGUID(L, 1), L.CheckBool(2))
			return 0
		},
		"event": func(L *lua.LState) int {
			v.commands(L).Event(int32(L.CheckInt(1)))
			return 0
		},
	})
	L.SetGlobal("world", api)
}

func (v *vm) commands(L *lua.LState) *world.Commands {
	if v.cmd == nil {
		L.RaiseError("world API used outside a hook")
	}
	return v.cmd
}

// spawnRecord reads a spawn table: {kind=, entry=, x=, y=, z=, o=, health=,
// level=, faction=, display_id=, respawn_ms=, active=}.
func spawnRecord(t *lua.LTable) (world.SpawnRecord, string) {
	var kind object.Kind
	switch lStr(t, "kind") {
	case "", "creature":
		kind = object.KindCreature
	case "gameobject":
		kind = object.KindGameObject
	default:
		return world.SpawnRecord{}, "kind must be creature or gameobject"
	}
	return world.SpawnRecord{
		Kind:         kind,
		Entry:        uint32(lInt(t, "entry")),
		Pos:          object.Position{X: lFloat(t, "x"), Y: lFloat(t, "y"), Z: lFloat(t, "z"), O: lFloat(t, "o")},
		DisplayID:    uint32(lInt(t, "display_id")),
		Level:        uint32(lInt(t, "level")),
		Health:       uint32(lInt(t, "health")),
		Faction:      uint32(lInt(t, "faction")),
		Team:         uint32(lInt(t, "team")),
		RespawnDelay: time.Duration(lInt(t, "respawn_ms")) * time.Millisecond,
		Active:       t.RawGetString("active") == lua.LTrue,
	}, ""
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

func lFloat(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}
