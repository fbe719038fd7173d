// Package rpmtest builds minimal RPM files for tests.
package rpmtest

import (
	"bytes"
	"encoding/binary"
)

// Package describes the header fields written by Build
type Package struct {
	Name    string
	Epoch   int
	Version string
	Release string
	Arch    string
	Summary string
}

const (
	tagName    = 1000
	tagVersion = 1001
	tagRelease = 1002
	tagEpoch   = 1003
	tagSummary = 1004
	tagArch    = 1022

	typeInt32      = 4
	typeString     = 6
	typeI18NString = 9
)

var (
	leadMagic   = []byte{0xED, 0xAB, 0xEE, 0xDB}
	headerMagic = []byte{0x8E, 0xAD, 0xE8, 0x01}
)

type entry struct {
	tag, typ, offset, count uint32
}

// Build returns a lead, an empty signature and a header carrying p.
// There is no payload, which is enough for header readers.
func Build(p Package) []byte {
	var buf bytes.Buffer

	lead := make([]byte, 96)
	copy(lead, leadMagic)
	lead[4] = 3
	buf.Write(lead)

	writeHeader(&buf, nil, nil)

	var store bytes.Buffer
	var entries []entry

	entries = append(entries, entry{tag: tagEpoch, typ: typeInt32, offset: 0, count: 1})
	binary.Write(&store, binary.BigEndian, uint32(p.Epoch))

	for _, s := range []struct {
		tag uint32
		typ uint32
		val string
	}{
		{tagName, typeString, p.Name},
		{tagVersion, typeString, p.Version},
		{tagRelease, typeString, p.Release},
		{tagSummary, typeI18NString, p.Summary},
		{tagArch, typeString, p.Arch},
	} {
		entries = append(entries, entry{tag: s.tag, typ: s.typ, offset: uint32(store.Len()), count: 1})
		store.WriteString(s.val)
		store.WriteByte(0)
	}

	writeHeader(&buf, entries, store.Bytes())
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, entries []entry, store []byte) {
	buf.Write(headerMagic)
	buf.Write(make([]byte, 4))
	binary.Write(buf, binary.BigEndian, uint32(len(entries)))
	binary.Write(buf, binary.BigEndian, uint32(len(store)))
	for _, e := range entries {
		for _, v := range []uint32{e.tag, e.typ, e.offset, e.count} {
			binary.Write(buf, binary.BigEndian, v)
		}
	}
	buf.Write(store)
}
