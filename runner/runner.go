// Package runner is the host boundary: it compiles KuMir program text and
// runs it against caller-provided input and output.
package runner

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/kumir/pkg/actor"
	"github.com/chazu/kumir/pkg/bytecode"
)

var log = commonlog.GetLogger("kumir.runner")

// Options configures one run. The zero value runs with no input, discarded
// output and default limits.
type Options struct {
	Output io.Writer
	Input  io.Reader

	WorkDir    string // base for relative file paths; defaults to ProgramDir
	ProgramDir string // directory of the program file
	Encoding   string // initial encoding of files opened by the program

	MaxCallDepth int    // 0 selects bytecode.DefaultMaxCallDepth
	StopMarker   string // "" selects bytecode.DefaultStopMarker
	Trace        bool
	Seed         uint64 // 0 seeds the random functions from the clock

	// Registry supplies actors; nil selects actor.Default().
	Registry *actor.Registry
}

// Result describes a finished run.
type Result struct {
	RunID   uuid.UUID
	Stopped bool // the program ended with "стоп"
	Elapsed time.Duration
}

// Compile parses and compiles program text.
func Compile(source string) (*bytecode.Program, error) {
	return bytecode.CompileSource(source)
}

// Run compiles and executes source. Syntax errors are returned as
// *compiler.SyntaxError and execution errors as *bytecode.RuntimeError;
// output written before an error stays written.
func Run(ctx context.Context, source string, opts Options) (*Result, error) {
	prog, err := Compile(source)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, prog, opts)
}

// RunFile reads and runs a program file. ProgramDir defaults to the file's
// directory.
func RunFile(ctx context.Context, path string, opts Options) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if opts.ProgramDir == "" {
		if abs, err := filepath.Abs(path); err == nil {
			opts.ProgramDir = filepath.Dir(abs)
		}
	}
	return Run(ctx, strings.TrimPrefix(string(src), "\ufeff"), opts)
}

// Execute runs an already compiled program.
func Execute(ctx context.Context, prog *bytecode.Program, opts Options) (res *Result, err error) {
	enc, err := actor.LookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}

	res = &Result{RunID: uuid.New()}
	start := time.Now()
	log.Infof("run %s: starting", res.RunID)

	m := bytecode.NewVM(prog)
	if opts.Output != nil {
		m.SetOutput(opts.Output)
	}
	if opts.Input != nil {
		m.SetInput(opts.Input)
	}
	if opts.Registry != nil {
		m.SetRegistry(opts.Registry)
	}
	m.SetMaxCallDepth(opts.MaxCallDepth)
	if opts.StopMarker != "" {
		m.SetStopMarker(opts.StopMarker)
	}
	m.Trace = opts.Trace

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = opts.ProgramDir
	}
	actx := actor.NewContext(workDir, opts.ProgramDir)
	actx.Encoding = enc
	if opts.Seed != 0 {
		actx.Rand = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	}
	m.SetActorContext(actx)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("run %s: panic: %v", res.RunID, r)
			err = fmt.Errorf("внутренняя ошибка исполнителя: %v", r)
		}
		res.Elapsed = time.Since(start)
	}()

	err = m.Execute(ctx)
	res.Stopped = m.Stopped()
	if err != nil {
		log.Infof("run %s: failed: %s", res.RunID, err)
		return res, err
	}
	log.Infof("run %s: finished in %s", res.RunID, time.Since(start))
	return res, nil
}
