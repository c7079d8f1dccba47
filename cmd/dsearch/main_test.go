package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/dsearch/codec"
)

const books = `{"isbn": "0684801221", "title": "The Old Man and the Sea", "rating": 10}
{"isbn": "0743273565", "title": "The Great Gatsby", "rating": 9}
`

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeConfig(t *testing.T) (dir, path string) {
	t.Helper()

	dir = t.TempDir()
	path = filepath.Join(dir, "books.jsonc")

	cfg := strings.NewReplacer(
		`"books.db"`, `"`+filepath.Join(dir, "books.db")+`"`,
		`"books.idx"`, `"`+filepath.Join(dir, "books.idx")+`"`,
		`"debug"`, `"warn"`,
	).Replace(booksConfig)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	return dir, path
}

func TestRun(t *testing.T) {
	dir, cfg := writeConfig(t)

	oldMan := codec.StringKey("0684801221").DocID()
	gatsby := codec.StringKey("0743273565").DocID()

	res := runCLI(t, books, "-c", cfg, "put")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, oldMan+"\n"+gatsby+"\n", res.stdout)

	res = runCLI(t, "", "-c", cfg, "search", "man AND rating:>8")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stderr, "total: 1")

	var rec record
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rec))
	require.Equal(t, oldMan, rec.Key)
	require.Equal(t, "The Old Man and the Sea", rec.Properties["title"])

	res = runCLI(t, "", "-c", cfg, "search", "-n", "1", "rating:>0")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stderr, "total: 2")
	require.Equal(t, 1, strings.Count(res.stdout, "\n"))

	res = runCLI(t, "", "-c", cfg, "get", gatsby, "00")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stdout, "The Great Gatsby")
	require.Contains(t, res.stderr, "not found: 00")

	res = runCLI(t, "", "-c", cfg, "check")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, "tree 2, index 2, missing 0, orphaned 0\n", res.stdout)

	res = runCLI(t, "", "-c", cfg, "stats")
	require.Equal(t, 0, res.code, res.stderr)
	require.True(t, strings.HasPrefix(res.stdout, "tree books, records 2, generation "), res.stdout)
	require.Contains(t, res.stdout, `"treeName":"books"`)

	out := filepath.Join(dir, "export.jsonl")
	res = runCLI(t, "", "-c", cfg, "export", out)
	require.Equal(t, 0, res.code, res.stderr)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, 2, bytes.Count(data, []byte("\n")))

	res = runCLI(t, "", "-c", cfg, "delete", oldMan)
	require.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, "", "-c", cfg, "reindex")
	require.Equal(t, 0, res.code, res.stderr)
	require.Equal(t, "indexed 1, removed 0, failed 0\n", res.stdout)

	res = runCLI(t, "", "-c", cfg, "search", "man")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stderr, "total: 0")
	require.Empty(t, res.stdout)

	res = runCLI(t, "", "-c", cfg, "search", "title:(man")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "unbalanced parenthesis")
}

func TestRun_Usage(t *testing.T) {
	_, cfg := writeConfig(t)

	res := runCLI(t, "")
	require.Equal(t, 2, res.code)
	require.Contains(t, res.stderr, "Usage: dsearch")

	res = runCLI(t, "", "--help")
	require.Equal(t, 0, res.code)
	require.Contains(t, res.stdout, "--index-dir")

	res = runCLI(t, "", "--bogus")
	require.Equal(t, 2, res.code)

	res = runCLI(t, "", "-c", cfg, "frobnicate")
	require.Equal(t, 2, res.code)
	require.Contains(t, res.stderr, "unknown command frobnicate")

	res = runCLI(t, "", "-c", filepath.Join(t.TempDir(), "missing.jsonc"), "check")
	require.Equal(t, 1, res.code)
}
