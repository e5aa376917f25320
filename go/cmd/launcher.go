package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// command is one registered subcommand.
type command struct {
	name, desc string
	main       func(args []string) int
}

var commands = make(map[string]*command)

// Register adds a subcommand. Subcommand packages call it from init; main
// receives argv with "<prog> <name>" as argv[0] and returns the exit status.
func Register(name, desc string, main func(args []string) int) {
	commands[name] = &command{name, desc, main}
}

func usage(w io.Writer, prog string) {
	names := make([]string, 0, len(commands))
	pad := 0
	for name := range commands {
		names = append(names, name)
		if len(name) > pad {
			pad = len(name)
		}
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-*s | %s\n", pad, name, commands[name].desc)
	}
	fmt.Fprintf(w, "\nExample: %s info --color a.out\n\n", prog)
}

// Dispatch runs the subcommand named by args[1] and returns its exit status.
func Dispatch(args []string, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr, args[0])
		return 1
	}
	switch args[1] {
	case "-h", "--help", "help":
		usage(stderr, args[0])
		return 0
	}
	c, ok := commands[args[1]]
	if !ok {
		fmt.Fprintf(stderr, "Command '%s' not found.\n\n", args[1])
		usage(stderr, args[0])
		return 1
	}
	argv := append([]string{strings.Join(args[:2], " ")}, args[2:]...)
	return c.main(argv)
}

func Main() { os.Exit(Dispatch(os.Args, os.Stderr)) }
