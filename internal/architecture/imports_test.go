package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type fileImports struct {
	rel     string
	imports []string
}

// scanInternal parses the imports of every Go file under internal/.
func scanInternal(t *testing.T) (string, []fileImports) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var out []fileImports
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		fi := fileImports{rel: filepath.ToSlash(rel)}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				fi.imports = append(fi.imports, imp)
			}
		}
		out = append(out, fi)
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, out
}

func TestImportBoundaries(t *testing.T) {
	modulePath, files := scanInternal(t)

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation
	for _, f := range files {
		layer := layerFor(f.rel)
		if layer == "" {
			continue
		}
		for _, imp := range f.imports {
			for _, bad := range disallowedImports(layer) {
				if under(imp, modulePath+"/internal/"+bad) {
					violations = append(violations, violation{file: f.rel, imp: imp, rule: bad})
					break
				}
			}
		}
	}

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: internal/%s)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

// SDK clients are built in one place each; everything else goes through the
// wrapper package.
func TestVendorSDKsStayBehindWrappers(t *testing.T) {
	_, files := scanInternal(t)

	owners := map[string][]string{
		"cloud.google.com/go/storage":         {"internal/platform/gcp/"},
		"google.golang.org/genai":             {"internal/platform/gemini/"},
		"github.com/redis/go-redis/":          {"internal/realtime/bus/"},
		"go.temporal.io/":                     {"internal/temporalx/", "internal/app/"},
		"gorm.io/driver/":                     {"internal/data/db/", "internal/data/repos/testutil/"},
		"github.com/beevik/etree":             {"internal/ooxml/", "internal/modules/rebuild/"},
		"go.opentelemetry.io/otel/sdk":        {"internal/observability/"},
		"go.opentelemetry.io/otel/exporters/": {"internal/observability/"},
	}

	var violations []string
	for _, f := range files {
		for _, imp := range f.imports {
			for sdk, allowed := range owners {
				if !strings.HasPrefix(imp, sdk) {
					continue
				}
				ok := false
				for _, dir := range allowed {
					if strings.HasPrefix(f.rel, dir) {
						ok = true
						break
					}
				}
				if !ok {
					violations = append(violations, fmt.Sprintf("- %s imports %q (allowed under %v)", f.rel, imp, allowed))
				}
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("vendor SDK imports outside their wrappers:\n%s", strings.Join(violations, "\n"))
	}
}

func layerFor(rel string) string {
	for _, layer := range []string{"domain", "pkg", "platform", "ooxml", "modules", "data", "jobs", "services", "temporalx", "realtime"} {
		if strings.HasPrefix(rel, "internal/"+layer+"/") {
			return layer
		}
	}
	return ""
}

func disallowedImports(layer string) []string {
	switch layer {
	case "domain", "pkg":
		return []string{"data", "jobs", "modules", "platform", "services", "app", "temporalx", "realtime", "ooxml", "observability"}
	case "platform":
		return []string{"domain", "data", "jobs", "modules", "services", "app", "temporalx", "realtime"}
	case "ooxml":
		return []string{"domain", "data", "jobs", "modules", "services", "app", "temporalx"}
	case "modules":
		return []string{"data", "jobs", "services", "app", "temporalx", "realtime"}
	case "data":
		return []string{"jobs", "modules", "services", "app", "temporalx"}
	case "jobs":
		return []string{"services", "app", "temporalx"}
	case "services":
		return []string{"jobs", "app", "temporalx"}
	case "temporalx":
		return []string{"services", "app", "modules"}
	case "realtime":
		return []string{"data", "jobs", "modules", "services", "app"}
	default:
		return nil
	}
}

func under(imp, dir string) bool {
	return imp == dir || strings.HasPrefix(imp, dir+"/")
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
