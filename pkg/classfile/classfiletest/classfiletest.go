// Package classfiletest builds minimal, valid class files for tests
package classfiletest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Access flags commonly used by tests
const (
	Public    uint16 = 0x0001
	Static    uint16 = 0x0008
	Final     uint16 = 0x0010
	Super     uint16 = 0x0020
	Interface uint16 = 0x0200
	Abstract  uint16 = 0x0400
	Synthetic uint16 = 0x1000
)

// Inner describes an InnerClasses entry; empty Outer or Name encode 0
type Inner struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

// Class describes a class file. Names use internal form (a/b/C$D).
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	// Access defaults to public|super when zero.
	Access     uint16
	Inner      []Inner
	SourceFile string
	// Longs adds eight-byte constants, which take two pool slots.
	Longs []int64
	// Fields adds that many empty int fields.
	Fields int
}

type pool struct {
	buf   bytes.Buffer
	next  uint16
	utf8  map[string]uint16
	class map[string]uint16
}

func newPool() *pool {
	return &pool{next: 1, utf8: map[string]uint16{}, class: map[string]uint16{}}
}

func (p *pool) utf(s string) uint16 {
	if idx, ok := p.utf8[s]; ok {
		return idx
	}
	p.buf.WriteByte(1)
	binary.Write(&p.buf, binary.BigEndian, uint16(len(s)))
	p.buf.WriteString(s)
	idx := p.next
	p.next++
	p.utf8[s] = idx
	return idx
}

func (p *pool) cls(name string) uint16 {
	if name == "" {
		return 0
	}
	if idx, ok := p.class[name]; ok {
		return idx
	}
	nameIdx := p.utf(name)
	p.buf.WriteByte(7)
	binary.Write(&p.buf, binary.BigEndian, nameIdx)
	idx := p.next
	p.next++
	p.class[name] = idx
	return idx
}

func (p *pool) long(v int64) {
	p.buf.WriteByte(5)
	binary.Write(&p.buf, binary.BigEndian, v)
	p.next += 2
}

// Bytes encodes the class file
func (c Class) Bytes() []byte {
	p := newPool()

	for _, v := range c.Longs {
		p.long(v)
	}

	access := c.Access
	if access == 0 {
		access = Public | Super
	}
	super := c.Super
	if super == "" && c.Name != "java/lang/Object" {
		super = "java/lang/Object"
	}

	this := p.cls(c.Name)
	superIdx := p.cls(super)
	ifaces := make([]uint16, len(c.Interfaces))
	for i, name := range c.Interfaces {
		ifaces[i] = p.cls(name)
	}

	var fieldName, fieldDesc uint16
	if c.Fields > 0 {
		fieldName = p.utf("f")
		fieldDesc = p.utf("I")
	}

	var body bytes.Buffer
	w := func(v interface{}) { binary.Write(&body, binary.BigEndian, v) }

	w(access)
	w(this)
	w(superIdx)
	w(uint16(len(ifaces)))
	for _, idx := range ifaces {
		w(idx)
	}

	w(uint16(c.Fields))
	for i := 0; i < c.Fields; i++ {
		w(uint16(0x0002))
		w(fieldName)
		w(fieldDesc)
		w(uint16(0))
	}
	w(uint16(0)) // methods

	var attrs [][]byte
	if len(c.Inner) > 0 {
		var a bytes.Buffer
		aw := func(v interface{}) { binary.Write(&a, binary.BigEndian, v) }
		aw(p.utf("InnerClasses"))
		var entries bytes.Buffer
		ew := func(v interface{}) { binary.Write(&entries, binary.BigEndian, v) }
		ew(uint16(len(c.Inner)))
		for _, ic := range c.Inner {
			ew(p.cls(ic.Inner))
			ew(p.cls(ic.Outer))
			if ic.Name == "" {
				ew(uint16(0))
			} else {
				ew(p.utf(ic.Name))
			}
			ew(ic.Access)
		}
		aw(uint32(entries.Len()))
		a.Write(entries.Bytes())
		attrs = append(attrs, a.Bytes())
	}
	if c.SourceFile != "" {
		var a bytes.Buffer
		aw := func(v interface{}) { binary.Write(&a, binary.BigEndian, v) }
		aw(p.utf("SourceFile"))
		aw(uint32(2))
		aw(p.utf(c.SourceFile))
		attrs = append(attrs, a.Bytes())
	}

	w(uint16(len(attrs)))
	for _, a := range attrs {
		body.Write(a)
	}

	var out bytes.Buffer
	ow := func(v interface{}) { binary.Write(&out, binary.BigEndian, v) }
	ow(uint32(0xCAFEBABE))
	ow(uint16(0))
	ow(uint16(52))
	ow(p.next)
	out.Write(p.buf.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

// Write stores the class under root at its package path and returns the file path
func Write(t testing.TB, root string, c Class) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(c.Name)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", c.Name, err)
	}
	if err := os.WriteFile(path, c.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", c.Name, err)
	}
	return path
}
