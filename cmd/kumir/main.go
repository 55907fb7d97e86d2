// KuMir CLI - runs .kum programs, prints bytecode listings and serves LSP
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/kumir/compiler"
	"github.com/chazu/kumir/manifest"
	"github.com/chazu/kumir/pkg/bytecode"
	"github.com/chazu/kumir/runner"
	"github.com/chazu/kumir/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("kumir.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "fmt" {
		return runFmt(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("kumir", flag.ContinueOnError)
	fs.SetOutput(stderr)
	disasm := fs.Bool("disasm", false, "Print the bytecode listing instead of running")
	lspMode := fs.Bool("lsp", false, "Serve the Language Server Protocol on stdio")
	workDir := fs.String("workdir", "", "Base directory for files opened by the program")
	verbosity := fs.Int("v", -1, "Log verbosity (0 = errors only; default from kumir.toml)")
	configDir := fs.String("config", "", "Directory containing kumir.toml (default: search upward from the program)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: kumir [options] file.kum...\n")
		fmt.Fprintf(stderr, "       kumir fmt [-check] <files or directories...>\n\n")
		fmt.Fprintf(stderr, "Runs KuMir programs. Input is read from stdin, output goes to stdout.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  kumir prog.kum                 # Run a program\n")
		fmt.Fprintf(stderr, "  kumir -disasm prog.kum         # Show compiled bytecode\n")
		fmt.Fprintf(stderr, "  kumir -workdir data prog.kum   # Resolve program files under data/\n")
		fmt.Fprintf(stderr, "  kumir -lsp                     # Start the language server\n")
		fmt.Fprintf(stderr, "  kumir fmt ./tasks              # Re-indent every .kum file under tasks/\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	paths := fs.Args()
	if len(paths) == 0 && !*lspMode {
		fs.Usage()
		return 2
	}

	m, err := loadManifest(*configDir, paths)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	configureLogging(m, *verbosity)

	if *lspMode {
		if err := server.NewLSP(nil).Run(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if *disasm {
		for _, path := range paths {
			if err := printListing(stdout, path); err != nil {
				reportError(stderr, path, err)
				return 1
			}
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := m.RunOptions()
	opts.Output = stdout
	opts.Input = stdin
	if *workDir != "" {
		opts.WorkDir = *workDir
	}

	for _, path := range paths {
		res, err := runner.RunFile(ctx, path, opts)
		if err != nil {
			reportError(stderr, path, err)
			return 1
		}
		log.Infof("%s: run %s finished in %s", path, res.RunID, res.Elapsed)
	}
	return 0
}

// loadManifest reads kumir.toml from configDir, or searches upward from the
// first program's directory. A missing file yields the defaults.
func loadManifest(configDir string, paths []string) (*manifest.Manifest, error) {
	if configDir != "" {
		return manifest.Load(configDir)
	}
	start := "."
	if len(paths) > 0 {
		start = filepath.Dir(paths[0])
	}
	m, err := manifest.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(start)
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, verbosity int) {
	if verbosity < 0 {
		verbosity = m.Log.Verbosity
	}
	if path := m.LogFilePath(); path != "" {
		commonlog.Configure(verbosity, &path)
		return
	}
	commonlog.Configure(verbosity, nil)
}

func printListing(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := runner.Compile(strings.TrimPrefix(string(data), "\ufeff"))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, prog.Disassemble())
	return err
}

// reportError prints err prefixed with the file name and its error class.
func reportError(w io.Writer, path string, err error) {
	var se *compiler.SyntaxError
	var re *bytecode.RuntimeError
	switch {
	case errors.As(err, &se):
		fmt.Fprintf(w, "%s: синтаксическая ошибка, %s\n", path, se.Error())
	case errors.As(err, &re):
		fmt.Fprintf(w, "%s: ошибка выполнения, %s\n", path, re.Error())
	default:
		fmt.Fprintf(w, "%s: %v\n", path, err)
	}
}
