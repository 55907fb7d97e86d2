// Package actor defines the plug-in libraries ("исполнители") a KuMir
// program can load with "использовать", and ships the builtin and file
// actors.
package actor

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/text/encoding"

	"github.com/chazu/kumir/pkg/value"
)

var log = commonlog.GetLogger("kumir.actor")

// BuiltinsName is the actor every machine loads before running.
const BuiltinsName = "Встроенные"

// Context is the part of the machine an actor function may see.
type Context struct {
	WorkDir    string // base for relative paths
	ProgramDir string // directory of the program file
	Rand       *rand.Rand
	Now        func() time.Time

	// Encoding is the initial text encoding of files; nil means UTF-8.
	Encoding encoding.Encoding
}

// NewContext returns a context with a time-seeded random source.
func NewContext(workDir, programDir string) *Context {
	seed := uint64(time.Now().UnixNano())
	return &Context{
		WorkDir:    workDir,
		ProgramDir: programDir,
		Rand:       rand.New(rand.NewPCG(seed, seed>>1)),
		Now:        time.Now,
	}
}

// NativeFunc implements an actor function. Arguments have already been
// converted to the declared parameter types.
type NativeFunc func(ctx *Context, args []value.Value) (value.Value, error)

// Func is a function exported by an actor. All parameters are passed by
// value. A procedure has an invalid Return type.
type Func struct {
	Name   string
	Params []value.Type
	Return value.Type
	Doc    string
	Call   NativeFunc
}

// Signature renders the function header the way it is written in KuMir.
func (f *Func) Signature() string {
	var b strings.Builder
	b.WriteString("алг ")
	if f.Return.IsValid() {
		b.WriteString(f.Return.String())
		b.WriteString(" ")
	}
	b.WriteString(f.Name)
	if len(f.Params) > 0 {
		parts := make([]string, len(f.Params))
		for i, p := range f.Params {
			parts[i] = "арг " + p.String()
		}
		b.WriteString("(" + strings.Join(parts, ", ") + ")")
	}
	return b.String()
}

// Actor is a named bundle of constants and functions.
type Actor interface {
	Name() string
	Constants() map[string]value.Value
	Functions() []*Func
}

// Closer is implemented by actors holding resources that must be released
// when a run ends.
type Closer interface {
	Close() error
}

// Factory creates a fresh actor instance for one run.
type Factory func() Actor

// Registry maps actor names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the builtin and file actors.
func Default() *Registry {
	r := NewRegistry()
	r.Register(BuiltinsName, NewBuiltins)
	r.Register(FilesName, NewFiles)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New instantiates the actor with the given name.
func (r *Registry) New(name string) (Actor, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("исполнитель \"%s\" не найден", name)
	}
	log.Debugf("loading actor %s", name)
	return f(), nil
}

// Names returns the registered actor names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Helpers shared by actor implementations
// ---------------------------------------------------------------------------

var (
	tInt    = value.Scalar(value.KindInt)
	tReal   = value.Scalar(value.KindReal)
	tString = value.Scalar(value.KindString)
	tChar   = value.Scalar(value.KindChar)
	tBool   = value.Scalar(value.KindBool)
	tFile   = value.Scalar(value.KindFile)
	tNone   = value.Type{}
)

func fn(name string, ret value.Type, params []value.Type, doc string, call NativeFunc) *Func {
	return &Func{Name: name, Params: params, Return: ret, Doc: doc, Call: call}
}

func params(ts ...value.Type) []value.Type { return ts }
