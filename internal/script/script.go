// Package script runs inbound converters written in Lua. A converter script
// defines a global function convert(msg, state) that returns a table of
// state keys, or nil when the message is not relevant.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"zigbee-capability/internal/converter"
)

// DefaultTimeout bounds a single convert call.
const DefaultTimeout = 100 * time.Millisecond

// Spec declares a Lua converter in a definition file.
type Spec struct {
	Cluster  string   `yaml:"cluster"`
	Types    []string `yaml:"types"`
	Endpoint string   `yaml:"endpoint"`
	Code     string   `yaml:"code"`
}

// Engine compiles converter scripts.
type Engine struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewEngine creates a script engine. A zero timeout selects DefaultTimeout.
func NewEngine(logger *slog.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{logger: logger.With("component", "script"), timeout: timeout}
}

// Compile parses the script and returns an inbound converter that runs it.
// Syntax errors and a missing convert function are reported here rather than
// on the first message.
func (e *Engine) Compile(spec Spec) (converter.Inbound, error) {
	if spec.Cluster == "" || len(spec.Types) == 0 {
		return converter.Inbound{}, errors.New("script: cluster and types are required")
	}
	name := spec.Cluster + ".lua"
	chunk, err := parse.Parse(strings.NewReader(spec.Code), name)
	if err != nil {
		return converter.Inbound{}, fmt.Errorf("script: parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return converter.Inbound{}, fmt.Errorf("script: compile %s: %w", name, err)
	}

	p := &pool{proto: proto}
	L, err := p.newState()
	if err != nil {
		return converter.Inbound{}, err
	}
	p.put(L)

	return converter.Inbound{
		Cluster:  spec.Cluster,
		Types:    append([]string(nil), spec.Types...),
		Endpoint: spec.Endpoint,
		Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
			return e.run(p, msg, meta)
		},
	}, nil
}

func (e *Engine) run(p *pool, msg *converter.Message, meta *converter.Meta) (converter.State, error) {
	L, err := p.get()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	var state converter.State
	if meta != nil {
		state = meta.State
	}
	msgTable := L.NewTable()
	msgTable.RawSetString("cluster", lua.LString(msg.Cluster))
	msgTable.RawSetString("type", lua.LString(msg.Type))
	msgTable.RawSetString("endpoint", lua.LNumber(msg.Endpoint))
	if meta != nil {
		msgTable.RawSetString("endpoint_name", lua.LString(meta.EndpointName(msg)))
	}
	msgTable.RawSetString("data", goToLua(L, map[string]any(msg.Data)))

	err = L.CallByParam(lua.P{
		Fn:      L.GetGlobal("convert"),
		NRet:    1,
		Protect: true,
	}, msgTable, goToLua(L, map[string]any(state)))
	if err != nil {
		// A state interrupted mid-call is not reused.
		L.Close()
		return nil, fmt.Errorf("script: %s: %w", msg.Cluster, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	p.put(L)

	switch v := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		patch := make(converter.State)
		v.ForEach(func(k, val lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				patch[string(ks)] = luaToGo(val)
			}
		})
		return patch, nil
	}
	return nil, fmt.Errorf("script: %s: convert returned %s, want table or nil", msg.Cluster, ret.Type())
}

// pool keeps initialised Lua states for one script.
type pool struct {
	proto *lua.FunctionProto
	mu    sync.Mutex
	idle  []*lua.LState
}

func (p *pool) get() (*lua.LState, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		L := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return L, nil
	}
	p.mu.Unlock()
	return p.newState()
}

func (p *pool) put(L *lua.LState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= 4 {
		L.Close()
		return
	}
	p.idle = append(p.idle, L)
}

func (p *pool) newState() (*lua.LState, error) {
	L := lua.NewState()
	// Sandbox: remove dangerous libs and functions
	for _, g := range []string{"os", "io", "loadfile", "dofile", "require", "load", "loadstring", "debug", "package"} {
		L.SetGlobal(g, lua.LNil)
	}
	registerHelpers(L)

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("script: load: %w", err)
	}
	if _, ok := L.GetGlobal("convert").(*lua.LFunction); !ok {
		L.Close()
		return nil, errors.New("script: no convert function defined")
	}
	return L, nil
}

// registerHelpers installs the util table: bit(value, n), round(value,
// precision) and lookup(table, value).
func registerHelpers(L *lua.LState) {
	util := L.NewTable()
	util.RawSetString("bit", L.NewFunction(func(L *lua.LState) int {
		v := uint64(L.CheckNumber(1))
		n := uint(L.CheckInt(2))
		L.Push(lua.LBool(v>>n&1 == 1))
		return 1
	}))
	util.RawSetString("round", L.NewFunction(func(L *lua.LState) int {
		v := float64(L.CheckNumber(1))
		prec := L.OptInt(2, 0)
		p := math.Pow(10, float64(prec))
		L.Push(lua.LNumber(math.Round(v*p) / p))
		return 1
	}))
	util.RawSetString("lookup", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		want := L.Get(2)
		var found lua.LValue = lua.LNil
		tbl.ForEach(func(k, v lua.LValue) {
			if lua.LVAsNumber(v) == lua.LVAsNumber(want) && v.Type() == want.Type() {
				found = k
			}
		})
		L.Push(found)
		return 1
	}))
	L.SetGlobal("util", util)
}
