package sourcemodel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/defindex/internal/compdb"
)

// DefaultClangPath is the clang binary used when none is configured.
const DefaultClangPath = "clang"

// ClangFrontend runs clang's JSON AST dump for each compile command.
// Header filtering and line directives follow clang's own source manager.
type ClangFrontend struct {
	opts Options
}

// NewClangFrontend creates a clang front end.
func NewClangFrontend(opts Options) *ClangFrontend {
	if opts.ClangPath == "" {
		opts.ClangPath = DefaultClangPath
	}
	return &ClangFrontend{opts: opts}
}

// Name returns the front end name.
func (f *ClangFrontend) Name() string {
	return FrontendClang
}

// Args returns the clang command line used for cmd, without argv[0].
func (f *ClangFrontend) Args(cmd compdb.Command) []string {
	args := []string{"-fsyntax-only", "-Xclang", "-ast-dump=json"}
	flags := compdb.SyntaxOnlyArgs(cmd)
	if compdb.Language(cmd) == "c++" && compdb.IsCSource(cmd.File) && !hasLanguageFlag(flags) {
		args = append(args, "-x", "c++")
	}
	args = append(args, flags...)
	args = append(args, f.opts.ExtraArgs...)
	return append(args, cmd.File)
}

// Parse runs clang on cmd and decodes its AST. A non-zero clang exit is
// a parse failure even when an AST was produced.
func (f *ClangFrontend) Parse(ctx context.Context, cmd compdb.Command) (TranslationUnit, error) {
	proc := exec.CommandContext(ctx, f.opts.ClangPath, f.Args(cmd)...)
	proc.Dir = cmd.Directory

	var stderr bytes.Buffer
	proc.Stderr = &stderr

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrParse, f.opts.ClangPath, err)
	}

	root, decodeErr := decodeClangAST(stdout)
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := proc.Wait()

	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && msg != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrParse, cmd.File, firstLines(msg, 5))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, cmd.File, waitErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, cmd.File, decodeErr)
	}

	return newClangUnit(cmd.File, root), nil
}

func hasLanguageFlag(args []string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "-x") {
			return true
		}
	}
	return false
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

// clangUnit is a decoded clang translation unit.
type clangUnit struct {
	file  string
	root  *clangNode
	names []string
}

func newClangUnit(mainFile string, root *clangNode) *clangUnit {
	return &clangUnit{file: mainFile, root: root}
}

func (u *clangUnit) MainFile() string {
	return u.file
}

func (u *clangUnit) Traverse(visit func(Decl) bool) {
	u.names = u.names[:0]
	w := &clangWalker{
		unit:   u,
		visit:  visit,
		scopes: make(map[string]string),
	}
	w.walkChildren(u.root)
}

func (u *clangUnit) QualifiedName(d Decl) string {
	if d.ID < 0 || d.ID >= len(u.names) {
		return ""
	}
	return u.names[d.ID]
}

func (u *clangUnit) IsInMainFile(loc Location) bool {
	if !loc.IsValid() || loc.IncludedFrom != "" {
		return false
	}
	return filepath.Clean(loc.File) == filepath.Clean(u.file)
}

func (u *clangUnit) PresumedLoc(loc Location) PresumedLoc {
	return loc.Presumed
}

func (u *clangUnit) Close() {
	u.root = nil
}

func clangDeclKind(kind string) DeclKind {
	switch kind {
	case "FunctionDecl", "CXXMethodDecl", "CXXConstructorDecl", "CXXDestructorDecl", "CXXConversionDecl":
		return DeclFunction
	case "CXXRecordDecl", "RecordDecl", "ClassTemplateSpecializationDecl", "ClassTemplatePartialSpecializationDecl":
		return DeclRecord
	default:
		return DeclOther
	}
}

// clangWalker traverses the AST in pre-order. prefix holds the qualified
// name of the innermost enclosing scope; scopes maps declaration ids of
// records and namespaces to their qualified names so out-of-line
// definitions can be named by their semantic parent.
type clangWalker struct {
	unit   *clangUnit
	visit  func(Decl) bool
	prefix []string
	scopes map[string]string
}

func (w *clangWalker) currentPrefix() string {
	if len(w.prefix) == 0 {
		return ""
	}
	return w.prefix[len(w.prefix)-1]
}

func (w *clangWalker) prefixFor(n *clangNode) string {
	if n.ParentDeclContextID != "" {
		if p, ok := w.scopes[n.ParentDeclContextID]; ok {
			return p
		}
	}
	return w.currentPrefix()
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "::" + name
}

func (w *clangWalker) walkChildren(n *clangNode) bool {
	for i := range n.Inner {
		var next *clangNode
		if i+1 < len(n.Inner) {
			next = &n.Inner[i+1]
		}
		if !w.walk(&n.Inner[i], n, next) {
			return false
		}
	}
	return true
}

func (w *clangWalker) walk(n, parent, next *clangNode) bool {
	if n.IsImplicit {
		return true
	}

	switch kind := clangDeclKind(n.Kind); kind {
	case DeclRecord:
		if parent.Kind == "LambdaExpr" {
			return true
		}
		return w.walkRecord(n, next)
	case DeclFunction:
		return w.walkFunction(n)
	}

	switch n.Kind {
	case "NamespaceDecl":
		if n.IsInline {
			w.scopes[n.ID] = w.currentPrefix()
			return w.walkChildren(n)
		}
		name := n.Name
		if name == "" {
			name = "(anonymous namespace)"
		}
		qualified := join(w.currentPrefix(), name)
		w.scopes[n.ID] = qualified
		return w.within(qualified, n)

	case "ClassTemplateDecl", "FunctionTemplateDecl", "VarTemplateDecl", "TypeAliasTemplateDecl":
		// Only the templated pattern is visited; the specializations
		// listed after it are instantiations.
		for i := range n.Inner {
			child := &n.Inner[i]
			if strings.HasSuffix(child.Kind, "ParmDecl") {
				continue
			}
			return w.walk(child, n, nil)
		}
		return true

	default:
		return w.walkChildren(n)
	}
}

func (w *clangWalker) within(prefix string, n *clangNode) bool {
	w.prefix = append(w.prefix, prefix)
	ok := w.walkChildren(n)
	w.prefix = w.prefix[:len(w.prefix)-1]
	return ok
}

func (w *clangWalker) emit(kind DeclKind, definition bool, name string, n *clangNode) bool {
	w.unit.names = append(w.unit.names, name)
	return w.visit(Decl{
		Kind:       kind,
		Definition: definition,
		Loc:        n.resolved,
		ID:         len(w.unit.names) - 1,
	})
}

func (w *clangWalker) walkRecord(n, next *clangNode) bool {
	name := n.Name
	if name == "" {
		name = typedefNameFor(n, next)
	}
	if name == "" {
		tag := n.TagUsed
		if tag == "" {
			tag = "struct"
		}
		name = "(anonymous " + tag + ")"
	}

	qualified := join(w.prefixFor(n), name)
	w.scopes[n.ID] = qualified
	if !w.emit(DeclRecord, n.CompleteDefinition, qualified, n) {
		return false
	}
	return w.within(qualified, n)
}

// typedefNameFor returns the name of a typedef that directly follows an
// unnamed record and refers to it.
func typedefNameFor(record, next *clangNode) string {
	if next == nil || next.Kind != "TypedefDecl" || record.ID == "" {
		return ""
	}
	if refersTo(next, record.ID) {
		return next.Name
	}
	return ""
}

func refersTo(n *clangNode, id string) bool {
	if (n.Decl != nil && n.Decl.ID == id) || (n.OwnedTagDecl != nil && n.OwnedTagDecl.ID == id) {
		return true
	}
	for i := range n.Inner {
		if refersTo(&n.Inner[i], id) {
			return true
		}
	}
	return false
}

func (w *clangWalker) walkFunction(n *clangNode) bool {
	qualified := join(w.prefixFor(n), n.Name)
	if !w.emit(DeclFunction, isClangFunctionDefinition(n), qualified, n) {
		return false
	}

	params := ""
	if n.Type != nil {
		params = parameterList(n.Type.QualType)
	}
	return w.within(qualified+"("+params+")", n)
}

func isClangFunctionDefinition(n *clangNode) bool {
	if n.ExplicitlyDefaulted != "" || n.ExplicitlyDeleted {
		return true
	}
	for i := range n.Inner {
		switch n.Inner[i].Kind {
		case "CompoundStmt", "CXXTryStmt":
			return true
		}
	}
	return false
}

// parameterList extracts the parameter types from a function qualType
// such as "double (double, double) const".
func parameterList(qualType string) string {
	angle, start := 0, -1
	for i, r := range qualType {
		switch r {
		case '<':
			angle++
		case '>':
			angle--
		case '(':
			if angle == 0 {
				start = i
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	for i := start; i < len(qualType); i++ {
		switch qualType[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				params := strings.TrimSpace(qualType[start+1 : i])
				if params == "void" {
					return ""
				}
				return params
			}
		}
	}
	return ""
}
