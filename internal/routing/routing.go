// Package routing maps the top-level directories of the monorepo to the
// mailing lists that receive their pull-request traffic.
package routing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mailing-list addresses.
const (
	CFECommitsAddress          = "cfe-commits@lists.llvm.org"
	FlangCommitsAddress        = "flang-commits@lists.llvm.org"
	LibcCommitsAddress         = "libc-commits@lists.llvm.org"
	LibcxxCommitsAddress       = "libcxx-commits@lists.llvm.org"
	LLDCommitsAddress          = "llvm-commits@lists.llvm.org"
	LLDBCommitsAddress         = "lldb-commits@lists.llvm.org"
	LLVMBranchCommitsAddress   = "llvm-branch-commits@lists.llvm.org"
	LLVMCommitsAddress         = "llvm-commits@lists.llvm.org"
	OpenMPCommitsAddress       = "openmp-commits@lists.llvm.org"
	ParallelLibsCommitsAddress = "parallel_libs-commits@lists.llvm.org"
	MLIRCommitsAddress         = "mlir-commits@lists.llvm.org"
)

// MainBranch is the only base branch whose pull requests are routed per project.
const MainBranch = "main"

// Addresses lists every mailing list the default table can route to.
var Addresses = []string{
	CFECommitsAddress,
	FlangCommitsAddress,
	LibcCommitsAddress,
	LibcxxCommitsAddress,
	LLDCommitsAddress,
	LLDBCommitsAddress,
	LLVMBranchCommitsAddress,
	LLVMCommitsAddress,
	OpenMPCommitsAddress,
	ParallelLibsCommitsAddress,
	MLIRCommitsAddress,
}

var defaultProjects = map[string]string{
	"cfe-branch":        LLVMBranchCommitsAddress,
	"clang-tools-extra": CFECommitsAddress,
	"clang":             CFECommitsAddress,
	"compiler-rt":       LLVMCommitsAddress,
	"compiler-rt-tag":   LLVMBranchCommitsAddress,
	"debuginfo-tests":   LLVMCommitsAddress,
	"flang":             FlangCommitsAddress,
	"libc":              LibcCommitsAddress,
	"libclc":            CFECommitsAddress,
	"libcxx":            LibcxxCommitsAddress,
	"libcxxabi":         LibcxxCommitsAddress,
	"libunwind":         CFECommitsAddress,
	"lld":               LLDCommitsAddress,
	"lldb":              LLDBCommitsAddress,
	"llvm":              LLVMCommitsAddress,
	"mlir":              MLIRCommitsAddress,
	"openmp":            OpenMPCommitsAddress,
	"parallel-libs":     ParallelLibsCommitsAddress,
	"polly":             LLVMCommitsAddress,
	"pstl":              LibcxxCommitsAddress,
	"zorg":              LLVMCommitsAddress,
}

// Table routes project names to mailing-list addresses.
type Table struct {
	projects      map[string]string
	branchAddress string
	fallback      string
}

// Destination is one outgoing message: an address and the projects routed to it.
type Destination struct {
	Address  string
	Projects []string
}

// DefaultTable returns the built-in routing table.
func DefaultTable() *Table {
	projects := make(map[string]string, len(defaultProjects))
	for name, addr := range defaultProjects {
		projects[name] = addr
	}
	return &Table{
		projects:      projects,
		branchAddress: LLVMBranchCommitsAddress,
		fallback:      LLVMCommitsAddress,
	}
}

// Projects returns the known project names in sorted order.
func (t *Table) Projects() []string {
	names := make([]string, 0, len(t.projects))
	for name := range t.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the address for project. Unknown projects resolve to the
// fallback list and report false.
func (t *Table) Lookup(project string) (string, bool) {
	if addr, ok := t.projects[project]; ok && addr != "" {
		return addr, true
	}
	return t.fallback, false
}

// Destinations groups projects by address, keeping the order of the first
// project routed to each address. Pull requests against any base branch other
// than main all go to the branch-commits list.
func (t *Table) Destinations(projects []string, baseRef string) []Destination {
	var dests []Destination
	index := make(map[string]int)
	for _, project := range projects {
		addr, _ := t.Lookup(project)
		if baseRef != MainBranch {
			addr = t.branchAddress
		}
		if i, ok := index[addr]; ok {
			dests[i].Projects = append(dests[i].Projects, project)
			continue
		}
		index[addr] = len(dests)
		dests = append(dests, Destination{Address: addr, Projects: []string{project}})
	}
	return dests
}

// ProjectsFromPaths returns the sorted, unique top-level directories of paths.
// The .github directory belongs to llvm.
func ProjectsFromPaths(paths []string) []string {
	seen := make(map[string]struct{})
	var projects []string
	for _, p := range paths {
		project, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
		if project == ".github" {
			project = "llvm"
		}
		if project == "" {
			continue
		}
		if _, ok := seen[project]; ok {
			continue
		}
		seen[project] = struct{}{}
		projects = append(projects, project)
	}
	sort.Strings(projects)
	return projects
}

// File is the on-disk form of a routing override.
type File struct {
	BranchAddress   string            `yaml:"branch-address"`
	FallbackAddress string            `yaml:"fallback-address"`
	Projects        map[string]string `yaml:"projects"`
}

// LoadTable reads a YAML override from path and merges it over the default
// table. An empty path returns the default table.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(contents, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routing file %s: %w", path, err)
	}
	for name, addr := range f.Projects {
		if strings.TrimSpace(addr) == "" {
			return nil, fmt.Errorf("project %q has an empty mailing list address", name)
		}
		t.projects[name] = addr
	}
	if f.BranchAddress != "" {
		t.branchAddress = f.BranchAddress
	}
	if f.FallbackAddress != "" {
		t.fallback = f.FallbackAddress
	}
	return t, nil
}
