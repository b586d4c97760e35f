// Command dump-decls prints every declaration a front end visits in one
// file, definitions or not, for debugging the indexer's filter.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/mvp-joe/defindex/internal/compdb"
	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

func main() {
	frontendName := flag.String("frontend", sourcemodel.FrontendTreeSitter, "treesitter or clang")
	clangPath := flag.String("clang", sourcemodel.DefaultClangPath, "clang binary")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dump-decls [--frontend name] <source>")
		os.Exit(2)
	}

	frontend, err := sourcemodel.New(*frontendName, sourcemodel.Options{ClangPath: *clangPath})
	if err != nil {
		log.Fatal(err)
	}

	path := flag.Arg(0)
	var db compdb.Database
	if found, err := compdb.AutoDetect(path); err == nil {
		db = found
	}

	tu, err := frontend.Parse(context.Background(), compdb.CommandFor(db, path))
	if err != nil {
		log.Fatal(err)
	}
	defer tu.Close()

	fmt.Printf("=== %s (%s) ===\n", tu.MainFile(), frontend.Name())
	tu.Traverse(func(d sourcemodel.Decl) bool {
		marker := " "
		if d.Definition {
			marker = "*"
		}
		where := "header"
		if tu.IsInMainFile(d.Loc) {
			where = "main"
		}
		p := tu.PresumedLoc(d.Loc)
		fmt.Printf("%s %-8s %-6s %s:%d:%d  (presumed %s:%d:%d)  %s\n",
			marker, d.Kind, where,
			d.Loc.File, d.Loc.Line, d.Loc.Column,
			p.Filename, p.Line, p.Column,
			tu.QualifiedName(d))
		return true
	})
}
