package classfile

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the kind of a declared type
type Kind string

const (
	KindClass      Kind = "class"
	KindInterface  Kind = "interface"
	KindAnnotation Kind = "annotation"
	KindEnum       Kind = "enum"
)

// Declaration is a type that can be named in source
type Declaration struct {
	// Name is the dotted name with nesting flattened (a.b.Outer.Inner).
	Name string
	// BinaryName is the name a class loader resolves (a.b.Outer$Inner).
	BinaryName string
	Package    string
	Kind       Kind
	Access     AccessFlags
	SuperClass string
	Interfaces []string
	SourceFile string
}

// SimpleName returns the last segment of Name
func (d Declaration) SimpleName() string {
	return d.Name[strings.LastIndex(d.Name, ".")+1:]
}

// IsAbstract reports whether the type cannot be instantiated directly
func (d Declaration) IsAbstract() bool {
	return d.Access.Has(AccAbstract) || d.Kind == KindInterface || d.Kind == KindAnnotation
}

// IsPublic reports whether the type is public
func (d Declaration) IsPublic() bool { return d.Access.Has(AccPublic) }

// Implements reports whether binaryName is among the direct interfaces
func (d Declaration) Implements(binaryName string) bool {
	for _, i := range d.Interfaces {
		if i == binaryName {
			return true
		}
	}
	return false
}

// DeclarationName flattens a binary name into the name used for symbol lookup
func DeclarationName(binaryName string) string {
	return strings.ReplaceAll(binaryName, "$", ".")
}

// NewDeclaration builds the declaration of a parsed class
func NewDeclaration(cf *ClassFile) Declaration {
	binaryName := cf.BinaryName()

	d := Declaration{
		Name:       DeclarationName(binaryName),
		BinaryName: binaryName,
		Access:     cf.Access,
		SourceFile: cf.SourceFile,
	}
	if i := strings.LastIndex(binaryName, "."); i >= 0 {
		d.Package = binaryName[:i]
	}
	if cf.SuperClass != "" {
		d.SuperClass = strings.ReplaceAll(cf.SuperClass, "/", ".")
	}
	for _, i := range cf.Interfaces {
		d.Interfaces = append(d.Interfaces, strings.ReplaceAll(i, "/", "."))
	}
	// nested classes carry their real modifiers in InnerClasses
	for _, ic := range cf.InnerClasses {
		if ic.Inner == cf.ThisClass {
			d.Access = ic.Access | (cf.Access & (AccSuper | AccModule))
		}
	}

	switch {
	case d.Access.Has(AccAnnotation):
		d.Kind = KindAnnotation
	case d.Access.Has(AccInterface):
		d.Kind = KindInterface
	case d.Access.Has(AccEnum):
		d.Kind = KindEnum
	default:
		d.Kind = KindClass
	}
	return d
}

// SymbolTable maps declaration names to declarations
type SymbolTable struct {
	decls map[string]Declaration
}

// NewSymbolTable creates an empty table
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{decls: make(map[string]Declaration)}
}

// Add records cf if it is addressable and reports whether it was added
func (t *SymbolTable) Add(cf *ClassFile) bool {
	if !cf.Addressable() {
		return false
	}
	d := NewDeclaration(cf)
	t.decls[d.Name] = d
	return true
}

// Lookup finds a declaration by flattened name
func (t *SymbolTable) Lookup(name string) (Declaration, bool) {
	if t == nil {
		return Declaration{}, false
	}
	d, ok := t.decls[name]
	return d, ok
}

// Len returns the number of declarations
func (t *SymbolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.decls)
}

// Declarations returns all declarations sorted by name
func (t *SymbolTable) Declarations() []Declaration {
	if t == nil {
		return nil
	}
	out := make([]Declaration, 0, len(t.decls))
	for _, d := range t.decls {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tree is an in-memory snapshot of a compiled output directory
type Tree struct {
	Root string
	// Invalid maps relative paths of unparsable class files to the parse error.
	Invalid map[string]error

	files   []string
	data    map[string][]byte
	symbols *SymbolTable
}

// ScanTree reads every .class file under root. A missing root yields an
// empty tree. Class files that fail to parse are kept out of the symbol
// table and listed in Invalid.
func ScanTree(root string) (*Tree, error) {
	t := &Tree{
		Root:    root,
		Invalid: make(map[string]error),
		data:    make(map[string][]byte),
		symbols: NewSymbolTable(),
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return t, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".class") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		t.files = append(t.files, rel)
		t.data[rel] = data

		cf, err := ParseBytes(data)
		if err != nil {
			t.Invalid[rel] = err
			return nil
		}
		t.symbols.Add(cf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(t.files)
	return t, nil
}

// ClassFiles returns the relative, slash-separated class file paths in sorted order
func (t *Tree) ClassFiles() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.files...)
}

// ReadClass returns the bytes of the class file at rel
func (t *Tree) ReadClass(rel string) ([]byte, error) {
	if t != nil {
		if data, ok := t.data[rel]; ok {
			return data, nil
		}
	}
	return nil, &fs.PathError{Op: "read", Path: rel, Err: fs.ErrNotExist}
}

// Lookup implements symbol lookup over the tree's declarations
func (t *Tree) Lookup(name string) (Declaration, bool) {
	if t == nil {
		return Declaration{}, false
	}
	return t.symbols.Lookup(name)
}

// Symbols returns the tree's symbol table
func (t *Tree) Symbols() *SymbolTable {
	if t == nil {
		return nil
	}
	return t.symbols
}

// BinaryNameOf derives the binary name from a relative class file path
func BinaryNameOf(rel string) string {
	return strings.ReplaceAll(strings.TrimSuffix(filepath.ToSlash(rel), ".class"), "/", ".")
}
