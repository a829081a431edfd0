package linker

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/funvibe/dynalink/internal/operation"
)

type paint struct {
	Color string
	Coats int
	note  string
}

func (p paint) Describe(prefix string) string { return prefix + p.Color }

func (p *paint) Thin(by int) error {
	if by > p.Coats {
		return errors.New("too thin")
	}
	p.Coats -= by
	return nil
}

func mustLinker(t *testing.T, cfg *Config, opts ...Option) *Linker {
	t.Helper()
	l, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNamedAndUnnamedPropertyAccess(t *testing.T) {
	l := mustLinker(t, nil)
	p := paint{Color: "red", Coats: 2}

	named, err := l.Link(operation.MustNamed(operation.GetProperty, "Color"), p)
	if err != nil {
		t.Fatalf("Link named: %v", err)
	}
	got, err := named(p)
	if err != nil || got != "red" {
		t.Errorf("named handler = %v, %v; want red", got, err)
	}

	unnamed, err := l.Link(operation.GetProperty, p)
	if err != nil {
		t.Fatalf("Link unnamed: %v", err)
	}
	got, err = unnamed(p, "Color")
	if err != nil || got != "red" {
		t.Errorf("unnamed handler = %v, %v; want red", got, err)
	}

	if _, err := unnamed(p); err == nil {
		t.Errorf("unnamed handler without a name should fail")
	}
	if _, err := unnamed(p, "note"); err == nil {
		t.Errorf("unexported field should not be readable")
	}
}

func TestNamedOperationCheckedAtLinkTime(t *testing.T) {
	l := mustLinker(t, nil)
	_, err := l.Link(operation.MustNamed(operation.GetProperty, "Size"), paint{})
	if !errors.Is(err, ErrNoResolver) {
		t.Fatalf("error = %v, want ErrNoResolver", err)
	}
	_, err = l.Link(operation.MustNamed(operation.GetLength, "x"), []int{})
	if !errors.Is(err, ErrNoResolver) {
		t.Fatalf("named GET_LENGTH should not resolve, got %v", err)
	}
}

func TestLinkCachesByOperationIdentity(t *testing.T) {
	l := mustLinker(t, nil)
	p := paint{Color: "blue"}

	for i := 0; i < 3; i++ {
		// A new but equal operation each time.
		if _, err := l.Link(operation.MustNamed(operation.GetProperty, "Color"), p); err != nil {
			t.Fatalf("Link: %v", err)
		}
	}
	if _, err := l.Link(operation.MustNamed(operation.GetProperty, "Color"), &p); err != nil {
		t.Fatalf("Link pointer: %v", err)
	}

	st := l.Stats()
	if st.Entries != 1 || st.Hits != 2 || st.Misses != 2 {
		t.Errorf("stats = %+v, want 1 entry, 2 hits, 2 misses", st)
	}
	linked := l.Linked()
	if len(linked) != 1 || !linked[0].Equal(operation.MustNamed(operation.GetProperty, "Color")) {
		t.Errorf("Linked() = %v", linked)
	}
}

func TestCacheReset(t *testing.T) {
	var log bytes.Buffer
	l := mustLinker(t, &Config{MaxEntries: 2, Verbose: true}, WithLogOutput(&log))
	data := map[string]int{"a": 1, "b": 2, "c": 3}

	for _, k := range []string{"a", "b", "c"} {
		if _, err := l.Link(operation.MustNamed(operation.GetProperty, k), data); err != nil {
			t.Fatalf("Link %s: %v", k, err)
		}
	}
	st := l.Stats()
	if st.Resets != 1 || st.Entries != 1 {
		t.Errorf("stats = %+v, want 1 reset, 1 entry", st)
	}
	if !strings.Contains(log.String(), "[link] cache full at 2 operations") {
		t.Errorf("missing reset trace in %q", log.String())
	}
}

func TestHostOperations(t *testing.T) {
	l := mustLinker(t, nil)
	p := &paint{Color: "green", Coats: 3}
	nums := []int{10, 20, 30}
	m := map[string]int{"x": 1}

	tests := []struct {
		label  string
		op     operation.Operation
		target any
		args   []any
		want   any
	}{
		{"set property named", operation.MustNamed(operation.SetProperty, "Color"), p, []any{"teal"}, nil},
		{"get property after set", operation.MustNamed(operation.GetProperty, "Color"), p, nil, "teal"},
		{"set property unnamed", operation.SetProperty, p, []any{"Coats", 5}, nil},
		{"get element named", operation.MustNamed(operation.GetElement, 1), nums, nil, 20},
		{"get element unnamed", operation.GetElement, nums, []any{2}, 30},
		{"set element", operation.MustNamed(operation.SetElement, 0), nums, []any{11}, nil},
		{"get element string", operation.GetElement, "abc", []any{1}, uint8('b')},
		{"get length", operation.GetLength, nums, nil, 3},
		{"map property", operation.MustNamed(operation.GetProperty, "x"), m, nil, 1},
		{"map missing key", operation.MustNamed(operation.GetProperty, "y"), m, nil, nil},
		{"map set", operation.SetElement, m, []any{"y", 7}, nil},
		{"call method named", operation.MustNamed(operation.CallMethod, "Describe"), p, []any{"color="}, "color=teal"},
		{"call method error result", operation.MustNamed(operation.CallMethod, "Thin"), p, []any{2}, nil},
		{"call func", operation.Call, func(a, b int) int { return a + b }, []any{2, 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			cs, err := l.NewCallSite(tt.op)
			if err != nil {
				t.Fatalf("NewCallSite: %v", err)
			}
			got, err := cs.Invoke(tt.target, tt.args...)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Invoke = %#v, want %#v", got, tt.want)
			}
		})
	}

	if p.Coats != 3 || nums[0] != 11 || m["y"] != 7 {
		t.Errorf("side effects not applied: coats=%d nums[0]=%d m[y]=%d", p.Coats, nums[0], m["y"])
	}
}

func TestHostMethodValue(t *testing.T) {
	l := mustLinker(t, nil)
	p := &paint{Coats: 1}

	h, err := l.Link(operation.MustNamed(operation.GetMethod, "Thin"), p)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	v, err := h(p)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	thin, ok := v.(func(args ...any) (any, error))
	if !ok {
		t.Fatalf("method value has type %T", v)
	}
	if _, err := thin(5); err == nil || err.Error() != "too thin" {
		t.Errorf("method error = %v, want too thin", err)
	}
}

func TestHostErrors(t *testing.T) {
	l := mustLinker(t, nil)

	h, err := l.Link(operation.GetElement, []int{1})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := h([]int{1}, 5); err == nil {
		t.Errorf("out of range index should fail")
	}
	if _, err := h([]int{1}, "0"); err == nil {
		t.Errorf("string index should fail")
	}

	if _, err := l.Link(operation.New, paint{}); !errors.Is(err, ErrNoResolver) {
		t.Errorf("NEW should not resolve on host values, got %v", err)
	}
	if _, err := l.Link(operation.GetProperty, nil); !errors.Is(err, ErrNoResolver) {
		t.Errorf("nil target should not resolve, got %v", err)
	}
	if _, err := l.Link(nil, 1); !errors.Is(err, operation.ErrNilArgument) {
		t.Errorf("nil operation error = %v", err)
	}
}

// coated reaches Color through an embedded pointer.
type coated struct {
	*paint
}

type swatch struct {
	Grid  [4]int
	Shade uint8
	Gloss float32
	Label label
}

type label string

func TestHostRejectsNilAndLossyInputs(t *testing.T) {
	l := mustLinker(t, nil)
	var nilArray *[3]int
	var nilFunc func()
	var nilPaint *paint
	sw := &swatch{Shade: 7}

	tests := []struct {
		label   string
		op      operation.Operation
		target  any
		args    []any
		wantNil bool
	}{
		{"length of nil array pointer", operation.GetLength, nilArray, nil, true},
		{"call of nil func", operation.Call, nilFunc, nil, true},
		{"property through nil embedded pointer", operation.MustNamed(operation.GetProperty, "Color"), coated{}, nil, true},
		{"value method on nil pointer", operation.MustNamed(operation.CallMethod, "Describe"), nilPaint, []any{"x"}, true},
		{"slice into array field", operation.MustNamed(operation.SetProperty, "Grid"), sw, []any{[]int{1}}, false},
		{"uint8 overflow", operation.MustNamed(operation.SetProperty, "Shade"), sw, []any{300}, false},
		{"negative into uint8", operation.MustNamed(operation.SetProperty, "Shade"), sw, []any{-1}, false},
		{"fraction into uint8", operation.MustNamed(operation.SetProperty, "Shade"), sw, []any{1.5}, false},
		{"float32 precision", operation.MustNamed(operation.SetProperty, "Gloss"), sw, []any{0.1}, false},
		{"int into string", operation.MustNamed(operation.SetProperty, "Label"), sw, []any{65}, false},
		{"nil into uint8", operation.MustNamed(operation.SetProperty, "Shade"), sw, []any{nil}, false},
		{"int key on string map", operation.MustNamed(operation.GetElement, 65), map[string]int{"A": 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			h, err := l.Link(tt.op, tt.target)
			if err != nil {
				t.Fatalf("Link: %v", err)
			}
			got, err := h(tt.target, tt.args...)
			if err == nil {
				t.Fatalf("handler = %v, want an error", got)
			}
			if tt.wantNil && !errors.Is(err, errNilTarget) {
				t.Errorf("error = %v, want nil target", err)
			}
		})
	}

	if sw.Shade != 7 || sw.Grid != [4]int{} || sw.Label != "" {
		t.Errorf("rejected sets changed the target: %+v", *sw)
	}
}

func TestHostLosslessConversions(t *testing.T) {
	l := mustLinker(t, nil)
	sw := &swatch{}

	set := func(name string, v any) {
		t.Helper()
		h, err := l.Link(operation.MustNamed(operation.SetProperty, name), sw)
		if err != nil {
			t.Fatalf("Link: %v", err)
		}
		if _, err := h(sw, v); err != nil {
			t.Fatalf("set %s to %v: %v", name, v, err)
		}
	}

	set("Shade", 200)
	set("Gloss", 3)
	set("Label", "matte")
	set("Grid", [4]int{1, 2, 3, 4})
	if sw.Shade != 200 || sw.Gloss != 3 || sw.Label != "matte" || sw.Grid != [4]int{1, 2, 3, 4} {
		t.Errorf("swatch = %+v", *sw)
	}
	set("Shade", 4.0)
	if sw.Shade != 4 {
		t.Errorf("integral float should set Shade, got %d", sw.Shade)
	}

	h, err := l.Link(operation.GetElement, map[string]int{"A": 1})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if got, err := h(map[string]int{"A": 1}, label("A")); err != nil || got != 1 {
		t.Errorf("named string key = %v, %v; want 1", got, err)
	}

	p := &coated{&paint{Color: "teal"}}
	get, err := l.Link(operation.MustNamed(operation.GetProperty, "Color"), p)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if got, err := get(p); err != nil || got != "teal" {
		t.Errorf("promoted field = %v, %v; want teal", got, err)
	}
}

func TestCustomResolver(t *testing.T) {
	custom := ResolverFunc(func(op operation.Operation, typ reflect.Type) (Handler, bool) {
		if !operation.BaseOperation(op).Equal(operation.New) {
			return nil, false
		}
		return func(target any, args ...any) (any, error) { return "constructed", nil }, true
	})
	l := mustLinker(t, nil, WithResolver(custom))

	cs, err := l.NewCallSite(operation.New)
	if err != nil {
		t.Fatalf("NewCallSite: %v", err)
	}
	if got, err := cs.Invoke(paint{}); err != nil || got != "constructed" {
		t.Errorf("Invoke = %v, %v", got, err)
	}
	if !strings.HasPrefix(cs.String(), "NEW@") {
		t.Errorf("String() = %q", cs.String())
	}
}

func TestConcurrentLink(t *testing.T) {
	l := mustLinker(t, nil)
	p := paint{Color: "red", Coats: 4}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Color"
			if i%2 == 0 {
				name = "Coats"
			}
			for j := 0; j < 100; j++ {
				h, err := l.Link(operation.MustNamed(operation.GetProperty, name), p)
				if err != nil {
					t.Errorf("Link: %v", err)
					return
				}
				if _, err := h(p); err != nil {
					t.Errorf("handler: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if st := l.Stats(); st.Entries != 2 {
		t.Errorf("Entries = %d, want 2", st.Entries)
	}
}
