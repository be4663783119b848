package scripting

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// Hook function names looked up in the script globals. Missing functions
// are skipped.
const (
	fnEnter = "on_enter"
	fnLeave = "on_leave"
	fnTick  = "on_tick"
	fnEvent = "on_event"
)

// Engine runs Lua gameplay scripts as partition hooks. Partitions tick on
// separate goroutines, so every call borrows a VM from a pool; all VMs run
// the same precompiled chunks. Script globals are per VM and must not be
// used to share state between partitions.
type Engine struct {
	protos []*lua.FunctionProto
	log    *zap.Logger

	mu   sync.Mutex
	pool []*vm
}

var _ world.Hooks = (*Engine)(nil)

// vm is one Lua state plus the command buffer of the call it is serving.
type vm struct {
	L     *lua.LState
	cmd   *world.Commands
	hooks map[string]bool
}

// NewEngine compiles every .lua file under scriptsDir (sorted by path) and
// starts one VM to surface runtime errors in the top-level chunks.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	var files []string
	err := filepath.WalkDir(scriptsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".lua" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	sort.Strings(files)

	e := &Engine{log: log}
	for _, path := range files {
		proto, err := compileFile(path)
		if err != nil {
			return nil, err
		}
		e.protos = append(e.protos, proto)
		log.Debug("載入 Lua 腳本", zap.String("file", path))
	}

	v, err := e.newVM()
	if err != nil {
		return nil, err
	}
	e.pool = append(e.pool, v)
	return e, nil
}

// NewEngineFromSource builds an engine from in-memory chunks.
func NewEngineFromSource(log *zap.Logger, chunks ...string) (*Engine, error) {
	e := &Engine{log: log}
	for i, src := range chunks {
		name := fmt.Sprintf("chunk%d", i)
		stmts, err := parse.Parse(strings.NewReader(src), name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		proto, err := lua.Compile(stmts, name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		e.protos = append(e.protos, proto)
	}
	v, err := e.newVM()
	if err != nil {
		return nil, err
	}
	e.pool = append(e.pool, v)
	return e, nil
}

func compileFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stmts, err := parse.Parse(bufio.NewReader(f), path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(stmts, path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return proto, nil
}

func (e *Engine) newVM() (*vm, error) {
	L := lua.NewState()
	L.SetGlobal("API_VERSION", lua.LNumber(1))
	v := &vm{L: L, hooks: make(map[string]bool, 4)}
	registerAPI(v)

	for _, proto := range e.protos {
		L.Push(L.NewFunctionFromProto(proto))
		if err := L.PCall(0, 0, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("run %s: %w", proto.SourceName, err)
		}
	}
	for _, name := range []string{fnEnter, fnLeave, fnTick, fnEvent} {
		_, ok := L.GetGlobal(name).(*lua.LFunction)
		v.hooks[name] = ok
	}
	return v, nil
}

func (e *Engine) get() *vm {
	e.mu.Lock()
	if n := len(e.pool); n > 0 {
		v := e.pool[n-1]
		e.pool = e.pool[:n-1]
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()
	v, err := e.newVM()
	if err != nil {
		// The same chunks already ran once in NewEngine.
		e.log.Error("Lua 虛擬機建立失敗", zap.Error(err))
		return nil
	}
	return v
}

func (e *Engine) put(v *vm) {
	v.cmd = nil
	e.mu.Lock()
	e.pool = append(e.pool, v)
	e.mu.Unlock()
}

// call runs the global fn with args built against the borrowed VM.
func (e *Engine) call(cmd *world.Commands, fn string, args func(L *lua.LState) []lua.LValue) {
	v := e.get()
	if v == nil {
		return
	}
	defer e.put(v)
	if !v.hooks[fn] {
		return
	}
	v.cmd = cmd
	if err := v.L.CallByParam(lua.P{
		Fn:      v.L.GetGlobal(fn),
		NRet:    0,
		Protect: true,
	}, args(v.L)...); err != nil {
		e.log.Error("Lua 鉤子執行錯誤",
			zap.String("func", fn),
			zap.Stringer("partition", cmd.Partition()),
			zap.Error(err))
	}
}

// Has reports whether the scripts define hook fn.
func (e *Engine) Has(fn string) bool {
	v := e.get()
	if v == nil {
		return false
	}
	defer e.put(v)
	return v.hooks[fn]
}

func (e *Engine) OnEntityEnterPartition(cmd *world.Commands, ent *object.Entity) {
	e.call(cmd, fnEnter, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{entityTable(L, ent)}
	})
}

func (e *Engine) OnEntityLeavePartition(cmd *world.Commands, ent *object.Entity) {
	e.call(cmd, fnLeave, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{entityTable(L, ent)}
	})
}

func (e *Engine) OnTick(cmd *world.Commands, ent *object.Entity, deltaMs int64) {
	e.call(cmd, fnTick, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{entityTable(L, ent), lua.LNumber(deltaMs)}
	})
}

func (e *Engine) OnPartitionEvent(cmd *world.Commands, eventID int32) {
	e.call(cmd, fnEvent, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{lua.LNumber(eventID)}
	})
}

// Close shuts down every pooled VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.pool {
		v.L.Close()
	}
	e.pool = nil
}

// entityTable snapshots the script-visible state of ent.
func entityTable(L *lua.LState, ent *object.Entity) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("guid", lua.LNumber(ent.GUID))
	t.RawSetString("kind", lua.LString(ent.Kind.String()))
	t.RawSetString("entry", lua.LNumber(ent.Fields.Int(object.ObjectEntry)))
	t.RawSetString("spawn_id", lua.LNumber(ent.SpawnID))
	t.RawSetString("x", lua.LNumber(ent.Pos.X))
	t.RawSetString("y", lua.LNumber(ent.Pos.Y))
	t.RawSetString("z", lua.LNumber(ent.Pos.Z))
	t.RawSetString("o", lua.LNumber(ent.Pos.O))
	t.RawSetString("active", lua.LBool(ent.Active))
	t.RawSetString("dead", lua.LBool(ent.Life.Dead))
	if ent.Kind.IsUnit() {
		t.RawSetString("health", lua.LNumber(ent.Fields.Int(object.UnitHealth)))
		t.RawSetString("level", lua.LNumber(ent.Fields.Int(object.UnitLevel)))
	}
	return t
}

func lGUID(L *lua.LState, n int) ecs.GUID {
	return ecs.GUID(uint64(L.CheckNumber(n)))
}
