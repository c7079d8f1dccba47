package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/natefinch/atomic"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/docstore"
	"github.com/guyvdb/dsearch/dyno"
)

type commandFunc func(ctx context.Context, o *IO, s *docstore.Store[dyno.Object], opts options, args []string) error

var commands = map[string]commandFunc{
	"put":     cmdPut,
	"get":     cmdGet,
	"delete":  cmdDelete,
	"search":  cmdSearch,
	"reindex": cmdReindex,
	"check":   cmdCheck,
	"export":  cmdExport,
	"stats":   cmdStats,
}

var (
	errUsage    = errors.New("usage")
	errNotFound = errors.New("not found")
	errUnsynced = errors.New("tree and index differ")
)

// record is the JSON line form of a stored record.
type record struct {
	Key        string         `json:"key"`
	Score      float64        `json:"score,omitempty"`
	Properties map[string]any `json:"properties"`
}

func readRecords(r io.Reader) ([]dyno.Object, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	var out []dyno.Object
	for {
		props := make(map[string]any)
		err := dec.Decode(&props)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, *dyno.FromMap(props))
	}
}

func parseKeys(args []string) ([]codec.Key, error) {
	keys := make([]codec.Key, len(args))
	for i, a := range args {
		k, err := codec.ParseDocID(a)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func cmdPut(_ context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, _ []string) error {
	records, err := readRecords(o.In)
	if err != nil {
		return err
	}

	keys, err := s.CreateMulti(records)
	if err != nil {
		return err
	}

	for _, k := range keys {
		o.Println(k.DocID())
	}
	return nil
}

func cmdGet(_ context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: get <key>...", errUsage)
	}

	keys, err := parseKeys(args)
	if err != nil {
		return err
	}

	docs, err := s.FindMulti(keys)
	if err != nil {
		return err
	}

	missing := 0
	for i, d := range docs {
		if d == nil {
			missing++
			o.ErrPrintln("not found:", args[i])
			continue
		}
		if err := writeJSON(o.Out, record{Key: d.Key.DocID(), Properties: d.Record.Properties}); err != nil {
			return err
		}
	}

	if missing > 0 {
		return fmt.Errorf("%w: %d of %d keys", errNotFound, missing, len(keys))
	}
	return nil
}

func cmdDelete(_ context.Context, _ *IO, s *docstore.Store[dyno.Object], _ options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: delete <key>...", errUsage)
	}

	keys, err := parseKeys(args)
	if err != nil {
		return err
	}
	return s.DeleteMulti(keys)
}

func cmdSearch(ctx context.Context, o *IO, s *docstore.Store[dyno.Object], opts options, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: search <query>", errUsage)
	}

	res, err := s.Search(ctx, args[0],
		docstore.WithLimit(opts.limit),
		docstore.WithOffset(opts.offset),
		docstore.WithFields(opts.fields...),
	)
	if err != nil {
		return err
	}

	o.ErrPrintln("total:", res.Total)
	for _, h := range res.Hits {
		if err := writeJSON(o.Out, record{Key: h.Key.DocID(), Score: h.Score, Properties: h.Record.Properties}); err != nil {
			return err
		}
	}
	if len(res.Missing) > 0 {
		o.ErrPrintln("missing from tree:", len(res.Missing), "(run reindex)")
	}
	return nil
}

func cmdReindex(ctx context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, args []string) error {
	keys, err := parseKeys(args)
	if err != nil {
		return err
	}

	rep, err := s.Reindex(ctx, keys...)
	if err != nil {
		return err
	}

	o.Printf("indexed %d, removed %d, failed %d\n", rep.Indexed, rep.Removed, len(rep.Failed))
	for _, k := range rep.Failed {
		o.ErrPrintln("failed:", k.DocID())
	}
	return nil
}

func cmdCheck(ctx context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, _ []string) error {
	rep, err := s.Check(ctx)
	if err != nil {
		return err
	}

	o.Printf("tree %d, index %d, missing %d, orphaned %d\n", rep.TreeCount, rep.IndexCount, len(rep.Missing), len(rep.Orphaned))
	for _, k := range rep.Missing {
		o.Println("missing", k.DocID())
	}
	for _, k := range rep.Orphaned {
		o.Println("orphaned", k.DocID())
	}

	if !rep.InSync() {
		return errUnsynced
	}
	return nil
}

func cmdExport(_ context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: export <file>", errUsage)
	}

	var buf bytes.Buffer
	n := 0
	err := s.Scan("", func(d docstore.Document[dyno.Object]) error {
		n++
		return writeJSON(&buf, record{Key: d.Key.DocID(), Properties: d.Record.Properties})
	})
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(args[0], &buf); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}

	o.Printf("exported %d records to %s\n", n, args[0])
	return nil
}

func cmdStats(_ context.Context, o *IO, s *docstore.Store[dyno.Object], _ options, _ []string) error {
	n, err := s.Count()
	if err != nil {
		return err
	}

	st := s.Stats()
	o.Printf("tree %s, records %d, generation %d\n", st.Tree, n, st.Generation)

	item, err := s.Registration()
	if err != nil {
		return err
	}
	data, err := item.Marshal()
	if err != nil {
		return err
	}
	o.Println(string(data))
	return nil
}
