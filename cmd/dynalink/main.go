package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/dynalink/internal/linker"
	"github.com/funvibe/dynalink/internal/operation"
)

const usage = `Usage:
  %[1]s ops                       list the standard operations
  %[1]s describe <OP> [name]      show string form and hash of an operation
  %[1]s get <file.yaml> <path>    read a dotted path from a YAML document
`

func main() {
	if handleOps() || handleDescribe() || handleGet() {
		return
	}
	fmt.Fprintf(os.Stderr, usage, os.Args[0])
	os.Exit(2)
}

func handleOps() bool {
	if len(os.Args) < 2 || os.Args[1] != "ops" {
		return false
	}
	st := newStyle()
	for _, op := range operation.StandardOperations {
		takes := ""
		if op.TakesName() {
			takes = "takes name"
		}
		fmt.Printf("  %s %s\n", st.bold(fmt.Sprintf("%-13s", op)), takes)
	}
	return true
}

func handleDescribe() bool {
	if len(os.Args) < 2 || os.Args[1] != "describe" {
		return false
	}
	if len(os.Args) < 3 || len(os.Args) > 4 {
		fmt.Fprintf(os.Stderr, "Usage: %s describe <OP> [name]\n", os.Args[0])
		os.Exit(1)
	}

	op, err := parseOperation(os.Args[2], os.Args[3:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Print(describe(op, newStyle()))
	return true
}

func handleGet() bool {
	if len(os.Args) < 2 || os.Args[1] != "get" {
		return false
	}
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "Usage: %s get <file.yaml> <path>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	l, err := linker.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parsing %s: %s\n", os.Args[2], err)
		os.Exit(1)
	}

	v, err := getPath(l, doc, os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
	return true
}

// loadConfig uses the nearest linker.yaml, or the defaults when there is none.
func loadConfig() (*linker.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path, err := linker.FindConfig(wd)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return linker.DefaultConfig(), nil
	}
	return linker.LoadConfig(path)
}

// parseOperation builds an operation from a standard operation name and an
// optional name argument. Names that parse as integers become int indices.
func parseOperation(kind string, rest []string) (operation.Operation, error) {
	std, err := operation.ParseStandardOperation(strings.ToUpper(kind))
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 {
		return std, nil
	}
	var name any = rest[0]
	if i, err := strconv.Atoi(rest[0]); err == nil {
		name = i
	}
	named, err := operation.NewNamed(std, name)
	if err != nil {
		return nil, err
	}
	return named, nil
}

func describe(op operation.Operation, st style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "operation: %s\n", st.bold(op.String()))
	fmt.Fprintf(&b, "hash:      %d\n", int32(op.Hash()))
	fmt.Fprintf(&b, "base:      %s\n", operation.BaseOperation(op))
	if name, ok := operation.NameOf(op); ok {
		fmt.Fprintf(&b, "name:      %v (%T)\n", name, name)
	} else {
		b.WriteString("name:      <none>\n")
	}
	return b.String()
}

// getPath walks a dotted path through doc. Integer segments index lists,
// all other segments are property names. Each segment is linked as a named
// operation, so repeated lookups hit the link cache.
func getPath(l *linker.Linker, doc any, path string) (any, error) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		var op operation.Operation
		if i, err := strconv.Atoi(seg); err == nil {
			if _, isList := cur.([]any); isList {
				op = operation.MustNamed(operation.GetElement, i)
			}
		}
		if op == nil {
			op = operation.MustNamed(operation.GetProperty, seg)
		}

		h, err := l.Link(op, cur)
		if err != nil {
			return nil, err
		}
		next, err := h(cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cur = next
	}
	return cur, nil
}

type style struct{ color bool }

// newStyle enables ANSI styling only on a terminal, honouring NO_COLOR.
func newStyle() style {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return style{}
	}
	fd := os.Stdout.Fd()
	return style{color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (s style) bold(text string) string {
	if !s.color {
		return text
	}
	return "\x1b[1m" + text + "\x1b[0m"
}
