// Package bantr_test holds repository-wide structural checks that no single
// package test can make:
//   - every package under pkg/ is reachable from a non-test import
//   - every store backend asserts store.Store compliance
//   - interfaces are not implemented only by test doubles
//
// Schema checks live in pkg/database/migrate because they need the embedded
// migration files.
package bantr_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/Aman-Thakur002/Bantr"

// sourceFile is one parsed non-test Go file.
type sourceFile struct {
	dir  string // slash separated, relative to the module root
	file *ast.File
}

// parseSources parses every non-test Go file under the given top-level
// directories.
func parseSources(t *testing.T, roots ...string) []sourceFile {
	t.Helper()
	fset := token.NewFileSet()
	var out []sourceFile
	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
			if err != nil {
				return err
			}
			out = append(out, sourceFile{dir: filepath.ToSlash(filepath.Dir(path)), file: f})
			return nil
		})
		require.NoError(t, err)
	}
	return out
}

// isTestSupport reports whether a package only exists for tests, named like
// net/http/httptest.
func isTestSupport(dir string) bool {
	return strings.HasSuffix(dir, "test")
}

// TestNoDeadPackages fails for any package under pkg/ that no non-test file
// in pkg/, cmd/ or internal/ imports. Such a package compiles and passes its
// own tests without ever running in the server.
func TestNoDeadPackages(t *testing.T) {
	sources := parseSources(t, "pkg", "cmd", "internal")

	imported := map[string]bool{}
	for _, src := range sources {
		if strings.HasPrefix(src.dir, "pkg/") {
			imported[modulePath+"/"+src.dir] = false
		}
	}
	require.NotEmpty(t, imported)

	for _, src := range sources {
		for _, spec := range src.file.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			require.NoError(t, err)
			if _, ok := imported[path]; ok && path != modulePath+"/"+src.dir {
				imported[path] = true
			}
		}
	}

	for pkg, used := range imported {
		if isTestSupport(pkg) {
			continue
		}
		assert.True(t, used, "package %s is never imported by non-test code; wire it or delete it", pkg)
	}
}

// complianceCheck is a `var _ Iface = (*Type)(nil)` declaration.
type complianceCheck struct {
	dir   string
	iface string
	impl  string
}

func complianceChecks(sources []sourceFile) []complianceCheck {
	var out []complianceCheck
	for _, src := range sources {
		for _, decl := range src.file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.VAR {
				continue
			}
			for _, spec := range gen.Specs {
				vs := spec.(*ast.ValueSpec)
				if len(vs.Names) != 1 || vs.Names[0].Name != "_" || vs.Type == nil || len(vs.Values) != 1 {
					continue
				}
				sel, ok := vs.Type.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				if impl := nilPointerType(vs.Values[0]); impl != "" {
					out = append(out, complianceCheck{
						dir:   src.dir,
						iface: sel.X.(*ast.Ident).Name + "." + sel.Sel.Name,
						impl:  impl,
					})
				}
			}
		}
	}
	return out
}

// nilPointerType returns T for the expression (*T)(nil).
func nilPointerType(e ast.Expr) string {
	call, ok := e.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return ""
	}
	if arg, ok := call.Args[0].(*ast.Ident); !ok || arg.Name != "nil" {
		return ""
	}
	paren, ok := call.Fun.(*ast.ParenExpr)
	if !ok {
		return ""
	}
	star, ok := paren.X.(*ast.StarExpr)
	if !ok {
		return ""
	}
	if id, ok := star.X.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// TestStoreBackendsAssertCompliance requires every backend package under
// pkg/store to declare that it implements store.Store, so a backend cannot
// silently fall behind the interface.
func TestStoreBackendsAssertCompliance(t *testing.T) {
	sources := parseSources(t, "pkg/store")
	checks := complianceChecks(sources)

	backends := map[string]bool{}
	for _, src := range sources {
		if src.dir != "pkg/store" && !isTestSupport(src.dir) {
			backends[src.dir] = false
		}
	}
	require.Contains(t, backends, "pkg/store/memory")
	require.Contains(t, backends, "pkg/store/postgres")

	for _, c := range checks {
		if c.iface == "store.Store" {
			backends[c.dir] = true
		}
	}
	for dir, ok := range backends {
		assert.True(t, ok, "%s does not assert store.Store compliance", dir)
	}
}

// TestInterfacesHaveRealImplementations fails when every compliance check
// for an interface sits in a test support package. A feature served only by
// a recorder or fake passes every other gate while doing nothing at runtime.
func TestInterfacesHaveRealImplementations(t *testing.T) {
	checks := complianceChecks(parseSources(t, "pkg"))
	require.NotEmpty(t, checks)

	runtime := map[string]bool{}
	for _, c := range checks {
		runtime[c.iface] = runtime[c.iface] || !isTestSupport(c.dir)
	}
	assert.True(t, runtime["event.Emitter"], "event.Emitter needs a runtime implementation")
	for iface, ok := range runtime {
		assert.True(t, ok, "%s is only implemented by test doubles", iface)
	}
}
