package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version    byte = 1
	kindRecord byte = 1
	kindIndex  byte = 2
)

var (
	ErrCorrupt = errors.New("cascheck: corrupt result entry")
	magic4     = [...]byte{'C', 'C', 'H', 'K'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | kind(1=record) | status(1) | seq(u32 be) | vlen(u32 be) | payload(vlen)
func EncodeRecord(status byte, seq uint32, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + 4 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)
	buf.WriteByte(status)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], seq)
	buf.Write(u4[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeRecord returns a payload slice aliasing b.
func DecodeRecord(b []byte) (status byte, seq uint32, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 4 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, 0, nil, ErrCorrupt
	}
	status = b[6]
	seq = binary.BigEndian.Uint32(b[7:11])
	vlen := int(binary.BigEndian.Uint32(b[11:15]))
	if vlen != len(b)-hdr { // rejects short and trailing bytes alike
		return 0, 0, nil, ErrCorrupt
	}
	return status, seq, b[hdr:], nil
}

// Index lists the records of one run:
//
//	magic(4) | ver(1) | kind(2=index) | n(u32 be)
//	nameLen(u16 be) | name(nameLen) | seq(u32 be) | status(1)  * n
type IndexItem struct {
	Name   string
	Seq    uint32
	Status byte
}

func EncodeIndex(items []IndexItem) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, it := range items {
		if l := len(it.Name); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("wire: invalid name length %d in index", l)
		}
		total += 2 + len(it.Name) + 4 + 1
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindIndex)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.Name)))
		buf.Write(u2[:])
		buf.WriteString(it.Name)

		binary.BigEndian.PutUint32(u4[:], it.Seq)
		buf.Write(u4[:])
		buf.WriteByte(it.Status)
	}
	return buf.Bytes(), nil
}

func DecodeIndex(b []byte) ([]IndexItem, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindIndex {
		return nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// smallest item is 2+1+4+1 bytes; don't trust n for preallocation
	if n < 0 || n > (len(b)-off)/8 {
		return nil, ErrCorrupt
	}

	items := make([]IndexItem, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if nlen <= 0 || nlen > len(b)-off {
			return nil, ErrCorrupt
		}
		name := string(b[off : off+nlen])
		off += nlen

		if off+5 > len(b) {
			return nil, ErrCorrupt
		}
		seq := binary.BigEndian.Uint32(b[off : off+4])
		off += 4
		status := b[off]
		off++

		items = append(items, IndexItem{Name: name, Seq: seq, Status: status})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}
