package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingT struct {
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal path", InternalImportForbidden, "colazione/internal/core", true},
		{"public path", InternalImportForbidden, "colazione/pkg/domain", false},
		{"module internal", ModuleInternalForbidden, "colazione/internal/blob", true},
		{"stdlib internal", ModuleInternalForbidden, "crypto/internal/boring", false},
		{"allowed module import", ModuleImportsExcept("colazione/pkg/domain"), "colazione/pkg/domain", false},
		{"other module import", ModuleImportsExcept("colazione/pkg/domain"), "colazione/internal/core", true},
		{"third party", ModuleImportsExcept(), "github.com/sirupsen/logrus", false},
		{"lookalike module", ModuleImportsExcept(), "colazionex/pkg", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDirectImportViolationsSkipsTestsAndDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"colazione/internal/core\"\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"colazione/internal/blob\"\n")
	if err := os.Mkdir(filepath.Join(dir, "nested.go"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "a.go") {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "stdlib only")
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ncolazione/pkg/domain\n\ncolazione/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "colazione/internal/core" {
		t.Fatalf("unexpected result %v %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations("./...", InternalImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure")
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingT{}
	failIfViolations(rec, "direct imports", "reason", nil)
	if rec.msg != "" {
		t.Fatalf("no violations should not fail")
	}
	failIfViolations(rec, "direct imports", "domain stays pure", []string{"colazione/internal/core (in a.go)"})
	if !strings.Contains(rec.msg, "domain stays pure") || !strings.Contains(rec.msg, "a.go") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
