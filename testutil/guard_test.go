package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testForbiddenImport = "some/forbidden/package"

func TestNonStandardImportPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fmt", false},
		{"encoding/json", false},
		{"", false},
		{"github.com/aws/aws-sdk-go-v2/aws", true},
		{"modernc.org/sqlite", true},
		{"typedobject/pkg/typed", true},
		{"typedobject", true},
		{"typedobjects/x", false},
	}
	for _, c := range cases {
		if got := NonStandardImport(c.in); got != c.want {
			t.Fatalf("NonStandardImport(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"typedobject/internal/infra/snapshot/s3", true},
		{"typedobject/internal/snapshot", false},
		{"infra", false},
		{"", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// TestAssertNoDirectImports exercises the success path by creating a tiny temp package with safe imports.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, NonStandardImport, "none")
}

func TestAssertNoDirectImportsIgnoresTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package tmp\nimport \"fmt\"\nfunc X() { fmt.Println() }"), 0o600); err != nil {
		t.Fatalf("write main file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main_test.go"), []byte("package tmp\nimport \""+testForbiddenImport+"\""), 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "sub.go"), []byte("package sub\nimport \""+testForbiddenImport+"\""), 0o600); err != nil {
		t.Fatalf("write sub file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("import \""+testForbiddenImport+"\""), 0o600); err != nil {
		t.Fatalf("write txt file: %v", err)
	}
	AssertNoDirectImports(t, dir, func(importPath string) bool {
		return importPath == testForbiddenImport
	}, "should ignore tests, subdirectories and non-go files")
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = format
	if len(args) > 0 {
		r.msg = args[0].(string)
	}
}

func TestDirectViolationsAreReported(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport (\n\t\"fmt\"\n\t\"github.com/example/dep\"\n)\n")
	if err := os.WriteFile(filepath.Join(dir, "dep.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, NonStandardImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "github.com/example/dep") {
		t.Fatalf("unexpected violations %v", viols)
	}
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "core stays stdlib", viols)
	if rec.msg != "core stays stdlib" {
		t.Fatalf("expected failure to carry the reason, got %q", rec.msg)
	}
}

// TestAssertNoTransitiveDependency runs against the current package with a predicate that always returns false.
func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", func(string) bool { return false }, "none")
}
