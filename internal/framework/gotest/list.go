package gotest

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/jask/testdock/internal/testtree"
)

// packageTests is one package from `go test -list` output.
type packageTests struct {
	ImportPath string
	Tests      []string
	Failed     bool
}

var (
	listTestName   = regexp.MustCompile(`^(Test|Example|Fuzz)[\p{L}\p{N}_]*$`)
	listPackageRow = regexp.MustCompile(`^(ok|FAIL|\?)\s+(\S+)`)
)

// parseList reads `go test -list` output. Test names precede the summary
// row of their package.
func parseList(r io.Reader) ([]packageTests, error) {
	var out []packageTests
	var pending []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if listTestName.MatchString(line) {
			pending = append(pending, line)
			continue
		}
		m := listPackageRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pkg := packageTests{ImportPath: m[2], Tests: pending, Failed: m[1] == "FAIL"}
		pending = nil
		if len(pkg.Tests) == 0 && !pkg.Failed {
			continue
		}
		out = append(out, pkg)
	}
	return out, sc.Err()
}

// buildTree lays packages out as suites under a root named rootName.
func buildTree(rootName string, pkgs []packageTests) *testtree.Tree {
	b := testtree.NewBuilder(rootName)
	for _, p := range pkgs {
		if len(p.Tests) == 0 {
			continue
		}
		suite := b.AddSuite(b.Root(), p.ImportPath)
		for _, name := range p.Tests {
			b.AddTest(suite, name)
		}
	}
	return b.Build()
}
