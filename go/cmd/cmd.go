package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lunixbochs/objdwarf/go/loader"
	"github.com/lunixbochs/objdwarf/go/models"
)

var heading = ansi.ColorFunc("cyan+b")

// ObjCmd is the shared driver of every subcommand: it parses the common
// flags, builds a Config and a logger, then calls RunFile once per path.
type ObjCmd struct {
	Name   string
	Config *models.Config
	Flags  *pflag.FlagSet
	Log    zerolog.Logger

	Stdout, Stderr io.Writer

	SetupFlags func() error
	RunFile    func(path string) error
}

func NewObjCmd(name string) *ObjCmd {
	return &ObjCmd{
		Name:   name,
		Flags:  pflag.NewFlagSet(name, pflag.ContinueOnError),
		Config: &models.Config{},
		Log:    zerolog.Nop(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Options returns the loader options derived from the parsed flags.
func (c *ObjCmd) Options() []loader.Option {
	return []loader.Option{loader.WithConfig(c.Config), loader.WithLogger(c.Log)}
}

// Heading prints a section title, colored when --color is set.
func (c *ObjCmd) Heading(format string, a ...interface{}) {
	s := fmt.Sprintf(format, a...)
	if c.Config.Color {
		s = heading(s)
	}
	fmt.Fprintln(c.Stdout, s)
}

func (c *ObjCmd) Printf(format string, a ...interface{}) {
	fmt.Fprintf(c.Stdout, format, a...)
}

// Emit writes v as a YAML document.
func (c *ObjCmd) Emit(v interface{}) error {
	enc := yaml.NewEncoder(c.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "yaml")
	}
	return errors.WithStack(enc.Close())
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// frame is one row of a printed stack trace.
type frame struct {
	path, line, fn string
}

// stackFrames returns the frames recorded by the innermost pkg/errors value
// in err's chain, stopping at main.main.
func stackFrames(err error) []frame {
	var st stackTracer
	if !errors.As(err, &st) {
		return nil
	}
	var frames []frame
	for _, f := range st.StackTrace() {
		fr := frame{line: fmt.Sprintf("%s:%d", f, f), fn: fmt.Sprintf("%n", f)}
		// %+s is "pkg/path.Func\n\t/abs/file.go"
		if fn, path, ok := strings.Cut(fmt.Sprintf("%+s", f), "\n"); ok {
			fr.fn = fn[strings.LastIndex(fn, "/")+1:]
			fr.path = strings.TrimSpace(path)
		}
		frames = append(frames, fr)
		if fr.fn == "main.main" {
			break
		}
	}
	return frames
}

// PrintError reports err on Stderr, followed by its stack trace in verbose
// mode.
func (c *ObjCmd) PrintError(err error) {
	w := c.Stderr
	fmt.Fprintf(w, "%s\nError: %s\n", strings.Repeat("-", 40), err)
	if !c.Config.Verbose {
		return
	}
	frames := stackFrames(err)
	var pathWidth, lineWidth int
	for _, f := range frames {
		pathWidth = max(pathWidth, len(f.path))
		lineWidth = max(lineWidth, len(f.line))
	}
	for _, f := range frames {
		if pathWidth > 0 {
			fmt.Fprintf(w, "%-*s | ", pathWidth, f.path)
		}
		fmt.Fprintf(w, "%-*s | %s()\n", lineWidth, f.line, f.fn)
	}
}

func (c *ObjCmd) newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if c.Config.Verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: c.Stderr, NoColor: !c.Config.Color, TimeFormat: "15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Str("cmd", c.Name).Logger()
}

// Run parses argv (argv[0] is the command name) and processes every path.
// It returns the process exit status.
func (c *ObjCmd) Run(argv []string) int {
	fs := c.Flags
	verbose := fs.BoolP("verbose", "v", false, "log decoding progress and print error stack traces")
	color := fs.Bool("color", false, "colorize headings and log output")
	prefix := fs.String("prefix", "", "library load prefix")
	window := fs.Int("window", models.DefaultWindowSize, "mapped window size in bytes")
	asYAML := fs.Bool("yaml", false, "print results as YAML")

	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: %s [options] <file> [file...]\n\nOptions:\n", argv[0])
		var flags []*pflag.Flag
		fs.VisitAll(func(f *pflag.Flag) { flags = append(flags, f) })
		models.PrintFlags(c.Stderr, flags)
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			c.PrintError(err)
			return 2
		}
	}
	if err := fs.Parse(argv[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(c.Stderr, err)
		return 2
	}
	paths := fs.Args()
	if len(paths) < 1 {
		fs.Usage()
		return 1
	}

	absPrefix := ""
	if *prefix != "" {
		var err error
		if absPrefix, err = filepath.Abs(*prefix); err != nil {
			c.PrintError(errors.WithStack(err))
			return 1
		}
	}
	c.Config.Color = *color
	c.Config.LoadPrefix = absPrefix
	c.Config.Verbose = *verbose
	c.Config.WindowSize = *window
	c.Config.YAML = *asYAML
	c.Log = c.newLogger()

	status := 0
	for _, path := range paths {
		c.Log.Debug().Str("path", path).Msg("processing")
		if err := c.RunFile(path); err != nil {
			c.PrintError(errors.WithMessage(err, path))
			status = 1
		}
	}
	return status
}
