// Package repl is an interactive shell over a store with one view.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/drpcorg/ordview"
	"github.com/drpcorg/ordview/view"
	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
)

// REPL per se.
type REPL struct {
	Store    *ordview.Store
	View     *view.View
	Registry *prometheus.Registry

	out io.Writer
	rl  *readline.Instance
}

var ErrUnknownCommand = errors.New("command unknown")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("put"),
	readline.PcItem("get"),
	readline.PcItem("del"),

	readline.PcItem("assign"),
	readline.PcItem("move"),
	readline.PcItem("unassign"),
	readline.PcItem("at"),
	readline.PcItem("where"),
	readline.PcItem("list"),
	readline.PcItem("groups"),
	readline.PcItem("pages"),
	readline.PcItem("pagesize"),
	readline.PcItem("verify"),
	readline.PcItem("stats"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// New makes a shell over the store and its view, printing into out. The
// registry gets the store, view and pebble metrics.
func New(store *ordview.Store, v *view.View, out io.Writer) (*REPL, error) {
	reg := prometheus.NewRegistry()
	collectors := append(ordview.Collectors(), view.Collectors()...)
	collectors = append(collectors, ordview.NewPebbleCollector(store))
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &REPL{Store: store, View: v, Registry: reg, out: out}, nil
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".ordview_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// REPL reads and runs one line; io.EOF means the session is over.
func (repl *REPL) REPL(ctx context.Context) error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Execute(ctx, line)
}

// Execute runs one command line.
func (repl *REPL) Execute(ctx context.Context, line string) (err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	// ----- records -----
	case "put", "set":
		err = repl.CommandPut(ctx, args)
	case "get":
		err = repl.CommandGet(ctx, args)
	case "del", "rm":
		err = repl.CommandDel(ctx, args)
	// ----- view changes -----
	case "assign":
		err = repl.CommandAssign(ctx, args)
	case "move":
		err = repl.CommandMove(ctx, args)
	case "unassign":
		err = repl.CommandUnassign(ctx, args)
	case "pagesize":
		err = repl.CommandPageSize(ctx, args)
	// ----- view queries -----
	case "at":
		err = repl.CommandAt(ctx, args)
	case "where":
		err = repl.CommandWhere(ctx, args)
	case "ls", "list":
		err = repl.CommandList(ctx, args)
	case "groups":
		err = repl.CommandGroups(ctx, args)
	case "pages":
		err = repl.CommandPages(ctx, args)
	// ----- debug -----
	case "verify":
		err = repl.CommandVerify(ctx, args)
	case "stats":
		err = repl.CommandStats(ctx, args)
	case "help":
		repl.printf("%s\n", help)
	case "exit", "quit":
		err = io.EOF
	default:
		err = errors.Join(ErrUnknownCommand, errors.New(cmd))
	}
	return
}

func (repl *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(repl.out, format, args...)
}
