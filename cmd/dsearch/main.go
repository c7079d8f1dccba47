// Command dsearch stores and searches JSON records described by a config
// file.
//
//	dsearch -c books.jsonc put < books.jsonl
//	dsearch -c books.jsonc search 'man AND rating:>8'
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
	"go.etcd.io/bbolt"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/docstore"
	"github.com/guyvdb/dsearch/dyno"
)

const usage = `Usage: dsearch [flags] <command> [args]

Commands:
  put                    read JSON records, one per line, from stdin
  get <key>...           print records by key
  delete <key>...        delete records by key
  search <query>         search records
  reindex [key]...       rebuild index documents from the tree
  check                  compare tree and index
  export <file>          write every record to file as JSON lines
  stats                  print record count, index generation and schema

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// IO bundles the streams a command talks to.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (o *IO) Println(a ...any) {
	fmt.Fprintln(o.Out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	fmt.Fprintf(o.Out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	fmt.Fprintln(o.Err, a...)
}

type options struct {
	limit  int
	offset int
	fields []string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o := &IO{In: stdin, Out: stdout, Err: stderr}

	fs := flag.NewFlagSet("dsearch", flag.ContinueOnError)
	fs.SetOutput(&strings.Builder{}) // discard pflag output

	var (
		configPath = fs.StringP("config", "c", "dsearch.jsonc", "config file (JSON with comments)")
		overlay    Config
		opts       options
	)
	fs.StringVar(&overlay.DB, "db", "", "bbolt database file")
	fs.StringVar(&overlay.IndexDir, "index-dir", "", "search index directory")
	fs.StringVar(&overlay.Tree, "tree", "", "tree name")
	fs.StringVar(&overlay.Codec, "codec", "", "record codec: json or cbor")
	fs.StringVar(&overlay.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.IntVarP(&opts.limit, "limit", "n", 10, "search: maximum hits, 0 for all")
	fs.IntVar(&opts.offset, "offset", 0, "search: ranked hits to skip")
	fs.StringSliceVarP(&opts.fields, "field", "f", nil, "search: default fields for bare terms")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			o.Printf("%s%s", usage, fs.FlagUsages())
			return 0
		}
		o.ErrPrintln("error:", err)
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		o.ErrPrintln(strings.TrimSpace(usage))
		return 2
	}

	file, err := loadConfig(*configPath, fs.Changed("config"))
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	cfg := mergeConfig(file, overlay)

	level, err := cfg.Level()
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	logger := slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	if err := cfg.validate(); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		o.ErrPrintln("error: unknown command", rest[0])
		return 2
	}

	s, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		return 1
	}
	defer closeStore()

	if err := cmd(ctx, o, s, opts, rest[1:]); err != nil {
		logger.Error(rest[0]+" failed", "err", err)
		return 1
	}
	return 0
}

func openStore(cfg Config, logger *slog.Logger) (*docstore.Store[dyno.Object], func(), error) {
	sch, err := cfg.Schema()
	if err != nil {
		return nil, nil, err
	}

	keys, err := cfg.KeyStrategy()
	if err != nil {
		return nil, nil, err
	}

	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	db, err := bbolt.Open(cfg.DB, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.DB, err)
	}

	s, err := docstore.NewBuilder[dyno.Object]().
		WithDB(db).
		WithIndexDir(cfg.IndexDir).
		WithSchema(sch).
		WithKeyStrategy(keys).
		WithCodec(c).
		WithLogger(logger).
		Finish()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return s, func() {
		if err := s.Close(); err != nil {
			logger.Warn("close store", "err", err)
		}
		if err := db.Close(); err != nil {
			logger.Warn("close db", "err", err)
		}
	}, nil
}
