package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/ordview"
	"github.com/drpcorg/ordview/repl"
	"github.com/drpcorg/ordview/utils"
	"github.com/drpcorg/ordview/view"
)

func main() {
	opts := ordview.Options{Logger: utils.NewDefaultLogger(slog.LevelInfo)}
	dir := "ordview.db"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	} else {
		opts.FS = vfs.NewMem()
		_, _ = fmt.Fprintln(os.Stderr, "no directory given, the store lives in memory")
	}
	opts.WriteOptions = pebble.Sync

	store, err := ordview.Open(dir, opts)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	v := view.New("main", view.Options{})
	if err = store.Register(v); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	re, err := repl.New(store, v, os.Stdout)
	if err == nil {
		err = re.Open()
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	ctx := context.Background()
	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = re.REPL(ctx)
	}
	_ = re.Close()
	if err = store.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}
