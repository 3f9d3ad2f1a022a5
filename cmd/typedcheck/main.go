// Command typedcheck validates JSON documents against a typed-object template.
//
//	typedcheck -template tpl.json [-name Person] [-save name] [-load name] [-audit] [-metrics] doc.json...
//
// The template's properties, in document order, declare the kinds each
// document may carry. Each document is applied to a fresh object; the first
// rejected property fails the document. With -save, the object built from the
// last document is stored through the snapshot backend selected by
// TYPEDOBJECT_SNAPSHOT_DRIVER once every document has passed. With -load, the
// named snapshot is restored into a fresh object and checked the same way;
// documents are optional then. -metrics prints assignment counters to stderr
// when the run ends.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"typedobject/internal/metrics"
	"typedobject/internal/snapshot"
	"typedobject/pkg/typed"
)

var (
	exitFunc    = os.Exit
	openBackend = snapshot.Open
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("typedcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		templatePath string
		name         string
		saveAs       string
		loadName     string
		audit        bool
		withMetrics  bool
	)
	fs.StringVar(&templatePath, "template", "", "path to the JSON template document")
	fs.StringVar(&name, "name", "", "object name used in error messages")
	fs.StringVar(&saveAs, "save", "", "snapshot name to store the last document under")
	fs.StringVar(&loadName, "load", "", "snapshot name to restore and check against the template")
	fs.BoolVar(&audit, "audit", false, "write JSON-lines audit events to stderr")
	fs.BoolVar(&withMetrics, "metrics", false, "print assignment counters to stderr on exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if templatePath == "" || (fs.NArg() == 0 && (loadName == "" || saveAs != "")) {
		_, _ = fmt.Fprintln(stderr, "usage: typedcheck -template tpl.json [-name N] [-save name] [-load name] [-audit] [-metrics] doc.json...")
		return 2
	}

	tpl, err := loadTemplate(templatePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "template %s: %v\n", templatePath, err)
		return 1
	}
	var auditLog typed.Observer
	if audit {
		auditLog = metrics.NewAuditLog(stderr)
	}
	var counters *counterSet
	if withMetrics {
		if counters, err = newCounterSet(); err != nil {
			_, _ = fmt.Fprintf(stderr, "metrics: %v\n", err)
			return 1
		}
		defer func() {
			if err := counters.write(stderr); err != nil {
				_, _ = fmt.Fprintf(stderr, "metrics: %v\n", err)
			}
		}()
	}
	opts := []typed.Option{typed.WithName(name)}
	if obs := metrics.Fanout(auditLog, counters.observer()); obs != nil {
		opts = append(opts, typed.WithObserver(obs))
	}
	if _, err := typed.New(tpl, opts...); err != nil {
		_, _ = fmt.Fprintf(stderr, "template %s: %v\n", templatePath, err)
		return 1
	}

	var (
		last   *typed.Object
		failed bool
	)
	for _, path := range fs.Args() {
		obj, err := check(path, tpl, opts)
		if err != nil {
			failed = true
			_, _ = fmt.Fprintf(stdout, "fail %s: %v\n", path, err)
			continue
		}
		last = obj
		_, _ = fmt.Fprintf(stdout, "ok %s\n", path)
	}
	if failed {
		return 1
	}
	ctx := context.Background()
	if saveAs != "" {
		if err := save(ctx, saveAs, last, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "save %s: %v\n", saveAs, err)
			return 1
		}
	}
	if loadName != "" {
		if err := load(ctx, loadName, tpl, opts, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "load %s: %v\n", loadName, err)
			return 1
		}
	}
	return 0
}

func check(path string, tpl typed.Template, opts []typed.Option) (*typed.Object, error) {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from the command line
	if err != nil {
		return nil, err
	}
	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if values == nil {
		return nil, errors.New("document is not a JSON object")
	}
	obj, err := typed.New(tpl, opts...)
	if err != nil {
		return nil, err
	}
	if err := obj.Assign(values); err != nil {
		return nil, err
	}
	return obj, nil
}

func save(ctx context.Context, name string, obj *typed.Object, stdout io.Writer) error {
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	if closer, ok := backend.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	info, err := snapshot.NewRepository(backend).Save(ctx, name, obj)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "saved %s (%s, %d bytes)\n", info.Name, backend.Driver(), info.Size)
	return err
}

func load(ctx context.Context, name string, tpl typed.Template, opts []typed.Option, stdout io.Writer) error {
	obj, err := typed.New(tpl, opts...)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	if closer, ok := backend.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	info, err := snapshot.NewRepository(backend).Load(ctx, name, obj)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "loaded %s (%s, %d bytes)\n", info.Name, backend.Driver(), info.Size)
	return err
}

// counterSet collects assignment outcomes in a private Prometheus registry
// and an expvar recorder for the lifetime of one run.
type counterSet struct {
	registry *prometheus.Registry
	prom     *metrics.PrometheusRecorder
	vars     *metrics.ExpvarRecorder
}

func newCounterSet() (*counterSet, error) {
	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, err
	}
	return &counterSet{registry: reg, prom: prom, vars: metrics.NewExpvarRecorder("")}, nil
}

func (c *counterSet) observer() typed.Observer {
	if c == nil {
		return nil
	}
	return metrics.Fanout(c.prom, c.vars)
}

// write prints the gathered families in the Prometheus text format followed
// by the expvar snapshot as one JSON line.
func (c *counterSet) write(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	line, err := json.Marshal(c.vars.Snapshot())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s %s\n", c.vars.Name(), line)
	return err
}

// loadTemplate decodes a JSON object into a Template, keeping the document's
// property order.
func loadTemplate(path string) (typed.Template, error) {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from the command line
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("template must be a JSON object")
	}
	var tpl typed.Template
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
		tpl = append(tpl, typed.F(key, value))
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return tpl, nil
}
