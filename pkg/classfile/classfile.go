// Package classfile reads the declaration-level structure of JVM class
// files: names, access flags, supertypes and nesting. Method bodies and
// field values are skipped.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Magic is the first word of every class file
const Magic = 0xCAFEBABE

// ErrNotClassFile is returned when the input does not start with Magic
var ErrNotClassFile = errors.New("classfile: bad magic number")

// AccessFlags are the access_flags of a class or inner class entry
type AccessFlags uint16

const (
	AccPublic     AccessFlags = 0x0001
	AccPrivate    AccessFlags = 0x0002
	AccProtected  AccessFlags = 0x0004
	AccStatic     AccessFlags = 0x0008
	AccFinal      AccessFlags = 0x0010
	AccSuper      AccessFlags = 0x0020
	AccInterface  AccessFlags = 0x0200
	AccAbstract   AccessFlags = 0x0400
	AccSynthetic  AccessFlags = 0x1000
	AccAnnotation AccessFlags = 0x2000
	AccEnum       AccessFlags = 0x4000
	AccModule     AccessFlags = 0x8000
)

// Has reports whether all bits of f are set
func (a AccessFlags) Has(f AccessFlags) bool { return a&f == f }

// Constant pool tags
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// InnerClass is one entry of the InnerClasses attribute. Outer is empty for
// local and anonymous classes; Name is empty for anonymous classes.
type InnerClass struct {
	Inner  string
	Outer  string
	Name   string
	Access AccessFlags
}

// ClassFile is the parsed header of a class file. Class names are in
// internal form (a/b/Outer$Inner).
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Access       AccessFlags
	ThisClass    string
	SuperClass   string
	Interfaces   []string
	InnerClasses []InnerClass
	SourceFile   string
	// Synthetic is set by the Synthetic attribute (pre-1.5 compilers).
	Synthetic bool
}

// BinaryName returns the dotted binary name (a.b.Outer$Inner)
func (c *ClassFile) BinaryName() string {
	return strings.ReplaceAll(c.ThisClass, "/", ".")
}

// Addressable reports whether the class can be named directly in source:
// synthetic, local, anonymous, module-info and package-info classes cannot.
func (c *ClassFile) Addressable() bool {
	if c.Synthetic || c.Access.Has(AccSynthetic) || c.Access.Has(AccModule) {
		return false
	}
	simple := c.ThisClass[strings.LastIndex(c.ThisClass, "/")+1:]
	if simple == "module-info" || simple == "package-info" {
		return false
	}
	for _, ic := range c.InnerClasses {
		if ic.Inner != c.ThisClass {
			continue
		}
		if ic.Outer == "" || ic.Name == "" {
			return false
		}
	}
	return true
}

type cpEntry struct {
	tag  byte
	utf8 string
	ref  uint16
}

// Parse reads a class file from r
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

// ParseBytes parses a class file held in memory
func ParseBytes(data []byte) (*ClassFile, error) {
	rd := &reader{b: data}

	if rd.u4() != Magic {
		if rd.err != nil {
			return nil, rd.err
		}
		return nil, ErrNotClassFile
	}

	cf := &ClassFile{}
	cf.MinorVersion = rd.u2()
	cf.MajorVersion = rd.u2()

	pool, err := readPool(rd)
	if err != nil {
		return nil, err
	}

	cf.Access = AccessFlags(rd.u2())
	if cf.ThisClass, err = pool.className(rd.u2()); err != nil {
		return nil, fmt.Errorf("classfile: this_class: %w", err)
	}
	if idx := rd.u2(); idx != 0 {
		if cf.SuperClass, err = pool.className(idx); err != nil {
			return nil, fmt.Errorf("classfile: super_class: %w", err)
		}
	}

	n := int(rd.u2())
	for i := 0; i < n && rd.err == nil; i++ {
		name, err := pool.className(rd.u2())
		if err != nil {
			return nil, fmt.Errorf("classfile: interface %d: %w", i, err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	// fields, then methods
	for k := 0; k < 2; k++ {
		members := int(rd.u2())
		for i := 0; i < members && rd.err == nil; i++ {
			rd.skip(6)
			skipAttributes(rd)
		}
	}

	attrs := int(rd.u2())
	for i := 0; i < attrs && rd.err == nil; i++ {
		nameIdx := rd.u2()
		length := int(rd.u4())
		body := rd.bytes(length)
		if rd.err != nil {
			break
		}

		name, err := pool.utf8At(nameIdx)
		if err != nil {
			return nil, fmt.Errorf("classfile: attribute name: %w", err)
		}
		switch name {
		case "InnerClasses":
			if cf.InnerClasses, err = readInnerClasses(body, pool); err != nil {
				return nil, err
			}
		case "SourceFile":
			if len(body) >= 2 {
				cf.SourceFile, _ = pool.utf8At(binary.BigEndian.Uint16(body))
			}
		case "Synthetic":
			cf.Synthetic = true
		}
	}

	if rd.err != nil {
		return nil, rd.err
	}
	return cf, nil
}

type constantPool []cpEntry

func readPool(rd *reader) (constantPool, error) {
	count := int(rd.u2())
	if count == 0 {
		return nil, errors.New("classfile: empty constant pool")
	}
	pool := make(constantPool, count)

	for i := 1; i < count; i++ {
		tag := rd.u1()
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n := int(rd.u2())
			e.utf8 = string(rd.bytes(n))
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.ref = rd.u2()
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			rd.skip(4)
		case tagMethodHandle:
			rd.skip(3)
		case tagLong, tagDouble:
			rd.skip(8)
			pool[i] = e
			// eight-byte constants take two slots
			i++
			continue
		default:
			if rd.err != nil {
				return nil, rd.err
			}
			return nil, fmt.Errorf("classfile: unknown constant pool tag %d at index %d", tag, i)
		}
		if rd.err != nil {
			return nil, rd.err
		}
		pool[i] = e
	}
	return pool, nil
}

func (p constantPool) utf8At(idx uint16) (string, error) {
	if int(idx) <= 0 || int(idx) >= len(p) {
		return "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	if p[idx].tag != tagUtf8 {
		return "", fmt.Errorf("constant pool index %d is not Utf8", idx)
	}
	return p[idx].utf8, nil
}

func (p constantPool) className(idx uint16) (string, error) {
	if int(idx) <= 0 || int(idx) >= len(p) {
		return "", fmt.Errorf("constant pool index %d out of range", idx)
	}
	if p[idx].tag != tagClass {
		return "", fmt.Errorf("constant pool index %d is not a Class", idx)
	}
	return p.utf8At(p[idx].ref)
}

func readInnerClasses(body []byte, pool constantPool) ([]InnerClass, error) {
	rd := &reader{b: body}
	n := int(rd.u2())
	out := make([]InnerClass, 0, n)
	for i := 0; i < n && rd.err == nil; i++ {
		innerIdx, outerIdx, nameIdx := rd.u2(), rd.u2(), rd.u2()
		access := AccessFlags(rd.u2())
		if rd.err != nil {
			break
		}

		ic := InnerClass{Access: access}
		var err error
		if ic.Inner, err = pool.className(innerIdx); err != nil {
			return nil, fmt.Errorf("classfile: InnerClasses: %w", err)
		}
		if outerIdx != 0 {
			if ic.Outer, err = pool.className(outerIdx); err != nil {
				return nil, fmt.Errorf("classfile: InnerClasses: %w", err)
			}
		}
		if nameIdx != 0 {
			if ic.Name, err = pool.utf8At(nameIdx); err != nil {
				return nil, fmt.Errorf("classfile: InnerClasses: %w", err)
			}
		}
		out = append(out, ic)
	}
	if rd.err != nil {
		return nil, fmt.Errorf("classfile: InnerClasses: %w", rd.err)
	}
	return out, nil
}

func skipAttributes(rd *reader) {
	n := int(rd.u2())
	for i := 0; i < n && rd.err == nil; i++ {
		rd.skip(2)
		rd.skip(int(rd.u4()))
	}
}

// reader is a big-endian cursor that records the first short read
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) skip(n int) { r.bytes(n) }

func (r *reader) u1() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
