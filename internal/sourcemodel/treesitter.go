package sourcemodel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/mvp-joe/defindex/internal/compdb"
)

// TreeSitterFrontend parses C and C++ in process with tree-sitter.
// Includes are not expanded; only the include regions of GNU line markers
// in preprocessed input lie outside the primary file. Line directives
// remap presumed locations.
type TreeSitterFrontend struct {
	opts Options
	cpp  *sitter.Language
	c    *sitter.Language
}

// NewTreeSitterFrontend creates a tree-sitter front end.
func NewTreeSitterFrontend(opts Options) *TreeSitterFrontend {
	return &TreeSitterFrontend{
		opts: opts,
		cpp:  sitter.NewLanguage(cpp.Language()),
		c:    sitter.NewLanguage(c.Language()),
	}
}

// Name returns the front end name.
func (f *TreeSitterFrontend) Name() string {
	return FrontendTreeSitter
}

// Parse reads and parses cmd.File. The grammar is chosen from -x flags,
// the compiler driver and the file extension.
func (f *TreeSitterFrontend) Parse(ctx context.Context, cmd compdb.Command) (TranslationUnit, error) {
	source, err := os.ReadFile(cmd.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	withExtra := cmd
	withExtra.Arguments = append(append([]string(nil), cmd.Arguments...), f.opts.ExtraArgs...)
	lang := compdb.Language(withExtra)

	language := f.cpp
	if lang == "c" {
		language = f.c
	}

	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("%w: failed to load %s grammar: %v", ErrParse, lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: %s: parser returned no tree", ErrParse, cmd.File)
	}

	root := tree.RootNode()
	if f.opts.Strict && root.HasError() {
		pos := firstErrorPosition(root)
		tree.Close()
		return nil, fmt.Errorf("%w: %s:%d:%d: syntax error", ErrParse, cmd.File, pos.Row+1, pos.Column+1)
	}

	return &treeSitterUnit{
		file:   cmd.File,
		lang:   lang,
		source: source,
		tree:   tree,
		lines:  buildLineMap(cmd.File, root, source),
	}, nil
}

func firstErrorPosition(node *sitter.Node) sitter.Point {
	var pos sitter.Point
	found := false
	walkTree(node, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.IsError() || n.IsMissing() {
			pos = n.StartPosition()
			found = true
			return false
		}
		return n.HasError()
	})
	return pos
}

// treeSitterUnit is a parsed tree-sitter translation unit.
type treeSitterUnit struct {
	file   string
	lang   string
	source []byte
	tree   *sitter.Tree
	lines  *lineMap
	names  []string
}

func (u *treeSitterUnit) MainFile() string {
	return u.file
}

func (u *treeSitterUnit) Traverse(visit func(Decl) bool) {
	u.names = u.names[:0]
	w := &tsWalker{unit: u, visit: visit}
	w.walk(u.tree.RootNode())
}

func (u *treeSitterUnit) QualifiedName(d Decl) string {
	if d.ID < 0 || d.ID >= len(u.names) {
		return ""
	}
	return u.names[d.ID]
}

func (u *treeSitterUnit) IsInMainFile(loc Location) bool {
	return loc.IsValid() && loc.IncludedFrom == "" && loc.File == u.file
}

func (u *treeSitterUnit) PresumedLoc(loc Location) PresumedLoc {
	return loc.Presumed
}

func (u *treeSitterUnit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}

// location builds the Location of a name node.
func (u *treeSitterUnit) location(n *sitter.Node) Location {
	if n == nil || n.IsMissing() {
		return Location{}
	}

	pos := n.StartPosition()
	loc := Location{
		File:   u.file,
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
	}
	if file, line, ok := u.lines.presumed(loc.Line); ok {
		loc.Presumed = PresumedLoc{Filename: file, Line: line, Column: loc.Column}
	}
	loc.IncludedFrom = u.lines.includedFrom(loc.Line)
	return loc
}

func (u *treeSitterUnit) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(u.source[n.StartByte():n.EndByte()])
}

type scopeKind uint8

const (
	scopeNamespace scopeKind = iota
	scopeRecord
	scopeFunction
)

type scope struct {
	kind scopeKind
	name string
}

// tsWalker performs the pre-order traversal and tracks lexical scopes.
type tsWalker struct {
	unit          *treeSitterUnit
	visit         func(Decl) bool
	scopes        []scope
	templateDepth int
}

// walk returns false once the visitor asks to stop.
func (w *tsWalker) walk(n *sitter.Node) bool {
	if n == nil {
		return true
	}

	switch n.Kind() {
	case "namespace_definition":
		pushed := w.pushNamespace(n)
		ok := w.walkChildren(n)
		w.scopes = w.scopes[:len(w.scopes)-pushed]
		return ok

	case "class_specifier", "struct_specifier", "union_specifier":
		return w.walkRecord(n)

	case "function_definition":
		return w.walkFunction(n)

	case "declaration", "field_declaration":
		if !w.emitPrototypes(n) {
			return false
		}
		return w.walkChildren(n)

	case "template_declaration":
		params := n.ChildByFieldName("parameters")
		generic := params != nil && params.NamedChildCount() > 0
		if generic {
			w.templateDepth++
		}
		ok := w.walkChildren(n)
		if generic {
			w.templateDepth--
		}
		return ok

	case "preproc_if", "preproc_elif":
		for _, child := range liveChildren(n, w.unit.source) {
			if !w.walk(child) {
				return false
			}
		}
		return true

	default:
		return w.walkChildren(n)
	}
}

func (w *tsWalker) walkChildren(n *sitter.Node) bool {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if !w.walk(n.NamedChild(i)) {
			return false
		}
	}
	return true
}

func (w *tsWalker) emit(kind DeclKind, definition bool, name string, at *sitter.Node) bool {
	w.unit.names = append(w.unit.names, name)
	return w.visit(Decl{
		Kind:       kind,
		Definition: definition,
		Loc:        w.unit.location(at),
		ID:         len(w.unit.names) - 1,
	})
}

// pushNamespace pushes the scopes opened by a namespace definition and
// returns how many were pushed. Inline namespaces are transparent.
func (w *tsWalker) pushNamespace(n *sitter.Node) int {
	for i := uint(0); i < n.ChildCount(); i++ {
		if n.Child(i).Kind() == "inline" {
			return 0
		}
	}

	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.scopes = append(w.scopes, scope{kind: scopeNamespace, name: "(anonymous namespace)"})
		return 1
	}

	pushed := 0
	for _, part := range strings.Split(w.unit.text(nameNode), "::") {
		part = collapseSpace(part)
		if part == "" || strings.HasPrefix(part, "inline ") {
			continue
		}
		w.scopes = append(w.scopes, scope{kind: scopeNamespace, name: part})
		pushed++
	}
	return pushed
}

func (w *tsWalker) walkRecord(n *sitter.Node) bool {
	tag := strings.TrimSuffix(n.Kind(), "_specifier")
	body := n.ChildByFieldName("body")
	nameNode := n.ChildByFieldName("name")

	var (
		qual    []string
		name    string
		segment string
		at      = n
	)

	if nameNode != nil {
		qual, name, at = w.declName(nameNode)
		segment = name
		if nameNode.Kind() == "template_type" {
			segment = collapseSpace(w.unit.text(nameNode))
		}
	} else {
		name = w.typedefName(n)
		if name == "" {
			name = "(anonymous " + tag + ")"
		}
		segment = name
	}

	if !w.emit(DeclRecord, body != nil, w.qualify(qual, name), at) {
		return false
	}

	if body == nil {
		return w.walkChildren(n)
	}

	depth := len(w.scopes)
	for _, q := range qual {
		w.scopes = append(w.scopes, scope{kind: scopeRecord, name: q})
	}
	w.scopes = append(w.scopes, scope{kind: scopeRecord, name: segment})
	ok := w.walkChildren(n)
	w.scopes = w.scopes[:depth]
	return ok
}

// typedefName returns the typedef name given to an unnamed record in
// `typedef struct { ... } Name;`.
func (w *tsWalker) typedefName(n *sitter.Node) string {
	parent := n.Parent()
	if parent == nil || parent.Kind() != "type_definition" {
		return ""
	}
	decl := parent.ChildByFieldName("declarator")
	if decl == nil || decl.Kind() != "type_identifier" {
		return ""
	}
	return w.unit.text(decl)
}

func (w *tsWalker) walkFunction(n *sitter.Node) bool {
	declarator := n.ChildByFieldName("declarator")
	nameNode, fnDecl := functionNameNode(declarator)
	if nameNode == nil {
		return w.walkChildren(n)
	}

	qual, name, at := w.declName(nameNode)

	saved := w.scopes
	if parent := n.Parent(); parent != nil && parent.Kind() == "friend_declaration" {
		w.scopes = w.namespaceScopes()
	}
	qualified := w.qualify(qual, name)
	ok := w.emit(DeclFunction, isFunctionDefinition(n), qualified, at)
	w.scopes = saved
	if !ok {
		return false
	}

	depth := len(w.scopes)
	for _, q := range qual {
		w.scopes = append(w.scopes, scope{kind: scopeRecord, name: q})
	}
	w.scopes = append(w.scopes, scope{kind: scopeFunction, name: name + "(" + w.parameterTypes(fnDecl) + ")"})
	ok = w.walkChildren(n)
	w.scopes = w.scopes[:depth]
	return ok
}

// emitPrototypes reports function declarators of a declaration that has
// no body. They are never definitions.
func (w *tsWalker) emitPrototypes(n *sitter.Node) bool {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if !declaresFunction(child) {
			continue
		}
		nameNode, _ := functionNameNode(child)
		if nameNode == nil {
			continue
		}
		qual, name, at := w.declName(nameNode)
		if !w.emit(DeclFunction, false, w.qualify(qual, name), at) {
			return false
		}
	}
	return true
}

func (w *tsWalker) namespaceScopes() []scope {
	var out []scope
	for _, s := range w.scopes {
		if s.kind == scopeNamespace {
			out = append(out, s)
		}
	}
	return out
}

func (w *tsWalker) qualify(qual []string, name string) string {
	parts := make([]string, 0, len(w.scopes)+len(qual)+1)
	for _, s := range w.scopes {
		parts = append(parts, s.name)
	}
	parts = append(parts, qual...)
	parts = append(parts, name)
	return strings.Join(parts, "::")
}

// declName splits a name node into written qualifiers, the unqualified
// name and the node that marks the declaration's location.
func (w *tsWalker) declName(n *sitter.Node) (qual []string, name string, at *sitter.Node) {
	switch n.Kind() {
	case "qualified_identifier", "qualified_type_identifier", "qualified_field_identifier", "qualified_operator_cast_identifier":
		inner := n.ChildByFieldName("name")
		if inner == nil {
			return nil, collapseSpace(w.unit.text(n)), n
		}
		if s := n.ChildByFieldName("scope"); s != nil {
			qual = append(qual, w.scopeSegment(s)...)
		}
		innerQual, innerName, innerAt := w.declName(inner)
		return append(qual, innerQual...), innerName, innerAt

	case "template_function", "template_type", "template_method":
		if inner := n.ChildByFieldName("name"); inner != nil {
			return w.declName(inner)
		}
		return nil, collapseSpace(w.unit.text(n)), n

	case "destructor_name":
		return nil, strings.Join(strings.Fields(w.unit.text(n)), ""), n

	case "operator_name":
		return nil, normalizeOperator(w.unit.text(n)), n

	case "operator_cast":
		text := w.unit.text(n)
		if d := n.ChildByFieldName("declarator"); d != nil {
			text = string(w.unit.source[n.StartByte():d.StartByte()])
		}
		return nil, collapseSpace(text), n

	default:
		return nil, collapseSpace(w.unit.text(n)), n
	}
}

// scopeSegment renders a written qualifier. Template arguments of a
// generic out-of-line member's class are dropped.
func (w *tsWalker) scopeSegment(n *sitter.Node) []string {
	switch n.Kind() {
	case "template_type":
		if w.templateDepth > 0 {
			if inner := n.ChildByFieldName("name"); inner != nil {
				return []string{w.unit.text(inner)}
			}
		}
		return []string{collapseSpace(w.unit.text(n))}
	case "qualified_identifier", "qualified_type_identifier":
		var out []string
		if s := n.ChildByFieldName("scope"); s != nil {
			out = append(out, w.scopeSegment(s)...)
		}
		if inner := n.ChildByFieldName("name"); inner != nil {
			out = append(out, w.scopeSegment(inner)...)
		}
		return out
	default:
		return []string{collapseSpace(w.unit.text(n))}
	}
}

// parameterTypes renders a function declarator's parameter types.
func (w *tsWalker) parameterTypes(fnDecl *sitter.Node) string {
	if fnDecl == nil {
		return ""
	}
	params := fnDecl.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}

	var types []string
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		switch p.Kind() {
		case "parameter_declaration", "optional_parameter_declaration":
			types = append(types, w.parameterType(p))
		case "variadic_parameter":
			types = append(types, "...")
		}
	}

	// f(void) declares no parameters.
	if len(types) == 1 && types[0] == "void" {
		return ""
	}
	return strings.Join(types, ", ")
}

func (w *tsWalker) parameterType(p *sitter.Node) string {
	var quals []string
	for i := uint(0); i < p.NamedChildCount(); i++ {
		if child := p.NamedChild(i); child.Kind() == "type_qualifier" {
			quals = append(quals, w.unit.text(child))
		}
	}

	typ := collapseSpace(w.unit.text(p.ChildByFieldName("type")))
	if len(quals) > 0 {
		typ = strings.Join(quals, " ") + " " + typ
	}

	var suffix strings.Builder
	for d := p.ChildByFieldName("declarator"); d != nil; {
		switch d.Kind() {
		case "pointer_declarator", "abstract_pointer_declarator":
			suffix.WriteString("*")
		case "reference_declarator", "abstract_reference_declarator":
			if d.ChildCount() > 0 {
				suffix.WriteString(d.Child(0).Kind())
			}
		case "array_declarator", "abstract_array_declarator":
			suffix.WriteString("*")
		}
		d = innerDeclarator(d)
	}
	if suffix.Len() > 0 {
		typ += " " + suffix.String()
	}
	return typ
}

// functionNameNode descends a function declarator to the node naming the
// function. It also returns the function_declarator itself.
func functionNameNode(n *sitter.Node) (name, fnDecl *sitter.Node) {
	for n != nil {
		switch n.Kind() {
		case "function_declarator":
			fnDecl = n
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator", "reference_declarator", "parenthesized_declarator", "attributed_declarator":
			n = innerDeclarator(n)
		case "operator_cast", "qualified_operator_cast_identifier":
			return n, n.ChildByFieldName("declarator")
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
			"operator_name", "template_function", "template_method":
			return n, fnDecl
		default:
			return nil, nil
		}
	}
	return nil, nil
}

// declaresFunction reports whether a declarator declares a function
// rather than a pointer or reference to one.
func declaresFunction(n *sitter.Node) bool {
	for n != nil {
		switch n.Kind() {
		case "function_declarator":
			inner := n.ChildByFieldName("declarator")
			for inner != nil && inner.Kind() == "parenthesized_declarator" {
				inner = innerDeclarator(inner)
			}
			if inner == nil {
				return false
			}
			switch inner.Kind() {
			case "identifier", "field_identifier", "qualified_identifier", "destructor_name",
				"operator_name", "template_function", "template_method":
				return true
			}
			return false
		case "pointer_declarator", "reference_declarator", "attributed_declarator", "parenthesized_declarator":
			n = innerDeclarator(n)
		default:
			return false
		}
	}
	return false
}

// innerDeclarator returns the declarator nested inside a wrapper.
func innerDeclarator(n *sitter.Node) *sitter.Node {
	if d := n.ChildByFieldName("declarator"); d != nil {
		return d
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		switch child.Kind() {
		case "type_qualifier", "attribute_declaration", "ms_pointer_modifier", "ms_based_modifier":
			continue
		}
		return child
	}
	return nil
}

func isFunctionDefinition(n *sitter.Node) bool {
	if n.ChildByFieldName("body") != nil {
		return true
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		switch n.NamedChild(i).Kind() {
		case "compound_statement", "try_statement", "default_method_clause", "delete_method_clause":
			return true
		}
	}
	return false
}

func normalizeOperator(text string) string {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "operator"))
	if rest == "" {
		return "operator"
	}
	first := rest[0]
	if first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') {
		// new, delete, co_await and their array forms
		word := strings.Fields(rest)
		return "operator " + strings.Join(word, "")
	}
	return "operator" + strings.Join(strings.Fields(rest), "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for
// each node. Returning false skips the node's children.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		walkTree(node.Child(i), visitor)
	}
}

// liveChildren returns the named children of n that the preprocessor
// keeps. For #if and #elif with a literal condition only the taken branch
// is live; every other conditional keeps all of its branches.
func liveChildren(n *sitter.Node, source []byte) []*sitter.Node {
	kind := n.Kind()
	conditional := kind == "preproc_if" || kind == "preproc_elif"

	var cond, alt *sitter.Node
	taken, known := false, false
	if conditional {
		cond = n.ChildByFieldName("condition")
		alt = n.ChildByFieldName("alternative")
		taken, known = literalCondition(cond, source)
	}

	children := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if conditional {
			switch {
			case sameNode(child, cond):
				continue
			case sameNode(child, alt):
				if known && taken {
					continue
				}
			default:
				if known && !taken {
					continue
				}
			}
		}
		children = append(children, child)
	}
	return children
}

// literalCondition evaluates #if conditions written as an integer literal
// or true/false, optionally parenthesized.
func literalCondition(n *sitter.Node, source []byte) (value, ok bool) {
	for n != nil && n.Kind() == "parenthesized_expression" && n.NamedChildCount() == 1 {
		n = n.NamedChild(0)
	}
	if n == nil {
		return false, false
	}

	switch n.Kind() {
	case "true":
		return true, true
	case "false":
		return false, true
	case "identifier":
		// An unknown identifier is 0 in C, and false is 0 in C++.
		if nodeText(n, source) == "false" {
			return false, true
		}
	case "number_literal":
		text := strings.TrimRight(nodeText(n, source), "uUlL")
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return false, false
		}
		return v != 0, true
	}
	return false, false
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}
