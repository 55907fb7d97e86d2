package actor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/chazu/kumir/pkg/value"
)

// FilesName is the name programs load the file actor under.
const FilesName = "Файлы"

var errClosed = errors.New("файл закрыт")

// encodings maps the names accepted by "установить кодировку" to decoders.
// A nil encoding means UTF-8.
var encodings = map[string]encoding.Encoding{
	"utf-8":        nil,
	"utf8":         nil,
	"cp1251":       charmap.Windows1251,
	"windows-1251": charmap.Windows1251,
	"windows1251":  charmap.Windows1251,
	"1251":         charmap.Windows1251,
	"cp866":        charmap.CodePage866,
	"ibm866":       charmap.CodePage866,
	"866":          charmap.CodePage866,
	"dos":          charmap.CodePage866,
	"koi8-r":       charmap.KOI8R,
	"koi8r":        charmap.KOI8R,
	"koi8":         charmap.KOI8R,
}

// LookupEncoding resolves an encoding name. An empty name selects UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("неизвестная кодировка \"%s\"", name)
	}
	return enc, nil
}

type openMode int

const (
	modeRead openMode = iota
	modeWrite
	modeAppend
)

// fileHandle is an open text file.
type fileHandle struct {
	path   string
	mode   openMode
	enc    encoding.Encoding
	f      *os.File
	r      *bufio.Reader
	w      io.Writer
	flush  io.Closer
	closed bool
}

func openHandle(path string, mode openMode, enc encoding.Encoding) (*fileHandle, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case modeRead:
		f, err = os.Open(path)
	case modeWrite:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case modeAppend:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть файл \"%s\": %w", path, err)
	}
	h := &fileHandle{path: path, mode: mode, enc: enc, f: f}
	if mode == modeRead {
		h.rewind()
	} else if enc != nil {
		tw := transform.NewWriter(f, enc.NewEncoder())
		h.w, h.flush = tw, tw
	} else {
		h.w = f
	}
	return h, nil
}

func (h *fileHandle) rewind() {
	var src io.Reader = h.f
	if h.enc != nil {
		src = transform.NewReader(h.f, h.enc.NewDecoder())
	}
	h.r = bufio.NewReader(src)
}

func (h *fileHandle) Name() string { return h.path }

func (h *fileHandle) WriteString(s string) (int, error) {
	if h.closed {
		return 0, errClosed
	}
	if h.mode == modeRead {
		return 0, fmt.Errorf("файл \"%s\" открыт на чтение", h.path)
	}
	return io.WriteString(h.w, s)
}

func (h *fileHandle) ReadLine() (string, error) {
	if h.closed {
		return "", errClosed
	}
	if h.mode != modeRead {
		return "", fmt.Errorf("файл \"%s\" открыт на запись", h.path)
	}
	line, err := h.r.ReadString('\n')
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (h *fileHandle) Close() error {
	if h.closed {
		return errClosed
	}
	h.closed = true
	if h.flush != nil {
		if err := h.flush.Close(); err != nil {
			h.f.Close()
			return err
		}
	}
	return h.f.Close()
}

// restart moves a read handle back to the start of the file.
func (h *fileHandle) restart() error {
	if h.closed {
		return errClosed
	}
	if h.mode != modeRead {
		return fmt.Errorf("файл \"%s\" открыт на запись", h.path)
	}
	if _, err := h.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h.rewind()
	return nil
}

func (h *fileHandle) atEOF() (bool, error) {
	if h.closed {
		return false, errClosed
	}
	if h.mode != modeRead {
		return true, nil
	}
	_, err := h.r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

// hasData skips whitespace and reports whether anything is left to read.
func (h *fileHandle) hasData() (bool, error) {
	if h.closed {
		return false, errClosed
	}
	if h.mode != modeRead {
		return false, nil
	}
	for {
		r, _, err := h.r.ReadRune()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !unicode.IsSpace(r) {
			return true, h.r.UnreadRune()
		}
	}
}

// files is the "Файлы" actor. Each run gets its own instance, so the
// encoding setting and the set of open handles are per run.
type files struct {
	enc    encoding.Encoding
	encSet bool // enc overrides Context.Encoding
	open   map[*fileHandle]struct{}
	funcs  []*Func
}

// NewFiles creates a file actor instance.
func NewFiles() Actor {
	fa := &files{open: make(map[*fileHandle]struct{})}
	fa.funcs = fa.functions()
	return fa
}

func (fa *files) Name() string                      { return FilesName }
func (fa *files) Constants() map[string]value.Value { return nil }
func (fa *files) Functions() []*Func                { return fa.funcs }

// Close releases every handle the program left open.
func (fa *files) Close() error {
	var errs []error
	for h := range fa.open {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(fa.open)
	return errors.Join(errs...)
}

// resolve makes a relative path absolute against the working directory.
func resolve(ctx *Context, path string) string {
	if path == "" || filepath.IsAbs(path) || ctx.WorkDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(ctx.WorkDir, path)
}

func handleOf(v value.Value) (*fileHandle, error) {
	h, ok := v.F.(*fileHandle)
	if !ok || h == nil {
		return nil, errors.New("файл не открыт")
	}
	return h, nil
}

func (fa *files) opener(mode openMode) NativeFunc {
	return func(ctx *Context, a []value.Value) (value.Value, error) {
		path := resolve(ctx, a[0].S)
		enc := ctx.Encoding
		if fa.encSet {
			enc = fa.enc
		}
		h, err := openHandle(path, mode, enc)
		if err != nil {
			return value.Value{}, err
		}
		fa.open[h] = struct{}{}
		log.Debugf("opened %s (mode %d)", path, mode)
		return value.File(h), nil
	}
}

func pathPredicate(f func(path string) bool) NativeFunc {
	return func(ctx *Context, a []value.Value) (value.Value, error) {
		return value.Bool(f(resolve(ctx, a[0].S))), nil
	}
}

func (fa *files) functions() []*Func {
	s1 := params(tString)
	f1 := params(tFile)

	return []*Func{
		fn("открыть на чтение", tFile, s1, "открывает файл для чтения", fa.opener(modeRead)),
		fn("открыть на запись", tFile, s1, "создаёт или очищает файл и открывает его для записи", fa.opener(modeWrite)),
		fn("открыть на добавление", tFile, s1, "открывает файл для дописывания в конец", fa.opener(modeAppend)),
		fn("закрыть", tNone, f1, "закрывает файл", func(_ *Context, a []value.Value) (value.Value, error) {
			h, err := handleOf(a[0])
			if err != nil {
				return value.Value{}, err
			}
			delete(fa.open, h)
			return value.Value{}, h.Close()
		}),
		fn("начать чтение", tNone, f1, "возвращает чтение к началу файла", func(_ *Context, a []value.Value) (value.Value, error) {
			h, err := handleOf(a[0])
			if err != nil {
				return value.Value{}, err
			}
			return value.Value{}, h.restart()
		}),
		fn("конец файла", tBool, f1, "да, если файл прочитан до конца", func(_ *Context, a []value.Value) (value.Value, error) {
			h, err := handleOf(a[0])
			if err != nil {
				return value.Value{}, err
			}
			eof, err := h.atEOF()
			return value.Bool(eof), err
		}),
		fn("есть данные", tBool, f1, "да, если в файле остались непробельные символы", func(_ *Context, a []value.Value) (value.Value, error) {
			h, err := handleOf(a[0])
			if err != nil {
				return value.Value{}, err
			}
			ok, err := h.hasData()
			return value.Bool(ok), err
		}),
		fn("можно открыть на чтение", tBool, s1, "проверяет право на чтение файла", pathPredicate(canRead)),
		fn("можно открыть на запись", tBool, s1, "проверяет право на запись файла", pathPredicate(canWrite)),
		fn("существует", tBool, s1, "проверяет, существует ли файл или каталог", pathPredicate(func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		})),
		fn("является каталогом", tBool, s1, "проверяет, является ли путь каталогом", pathPredicate(func(p string) bool {
			st, err := os.Stat(p)
			return err == nil && st.IsDir()
		})),
		fn("создать каталог", tBool, s1, "создаёт каталог вместе с недостающими родительскими", pathPredicate(func(p string) bool {
			return os.MkdirAll(p, 0o755) == nil
		})),
		fn("удалить_файл", tBool, s1, "удаляет файл", pathPredicate(func(p string) bool {
			st, err := os.Stat(p)
			if err != nil || st.IsDir() {
				return false
			}
			return os.Remove(p) == nil
		})),
		fn("удалить_каталог", tBool, s1, "удаляет пустой каталог", pathPredicate(func(p string) bool {
			st, err := os.Stat(p)
			if err != nil || !st.IsDir() {
				return false
			}
			return os.Remove(p) == nil
		})),
		fn("полный путь", tString, s1, "абсолютный путь к файлу", func(ctx *Context, a []value.Value) (value.Value, error) {
			p, err := filepath.Abs(resolve(ctx, a[0].S))
			if err != nil {
				return value.Value{}, err
			}
			return value.String(p), nil
		}),
		fn("РАБОЧИЙ КАТАЛОГ", tString, nil, "каталог, относительно которого открываются файлы", func(ctx *Context, _ []value.Value) (value.Value, error) {
			if ctx.WorkDir != "" {
				return value.String(ctx.WorkDir), nil
			}
			wd, err := os.Getwd()
			return value.String(wd), err
		}),
		fn("КАТАЛОГ ПРОГРАММЫ", tString, nil, "каталог, в котором лежит программа", func(ctx *Context, _ []value.Value) (value.Value, error) {
			return value.String(ctx.ProgramDir), nil
		}),
		fn("установить кодировку", tNone, s1, "кодировка для файлов, открываемых дальше", func(_ *Context, a []value.Value) (value.Value, error) {
			enc, err := LookupEncoding(a[0].S)
			if err != nil {
				return value.Value{}, err
			}
			fa.enc, fa.encSet = enc, true
			return value.Value{}, nil
		}),
	}
}
