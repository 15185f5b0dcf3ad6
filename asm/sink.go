package asm

import (
	"encoding/binary"

	"github.com/colorfulnotion/lirx64/x64errors"
)

// Sink receives encoded bytes. Every instruction is emitted through the
// same calls regardless of the sink, so a SizeCounter pass reports exactly
// the length a Buffer pass produces.
type Sink interface {
	Emit8(v uint8)
	Emit16(v uint16)
	Emit32(v uint32)
	Emit64(v uint64)
	// Patch32 overwrites four already emitted bytes at off.
	Patch32(off int, v uint32)
	Size() int
}

// Patcher64 is implemented by sinks that can rewrite 8-byte slots.
type Patcher64 interface {
	Patch64(off int, v uint64)
}

// Buffer is a growable sink.
type Buffer struct {
	b []byte
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

func (b *Buffer) Emit8(v uint8)   { b.b = append(b.b, v) }
func (b *Buffer) Emit16(v uint16) { b.b = binary.LittleEndian.AppendUint16(b.b, v) }
func (b *Buffer) Emit32(v uint32) { b.b = binary.LittleEndian.AppendUint32(b.b, v) }
func (b *Buffer) Emit64(v uint64) { b.b = binary.LittleEndian.AppendUint64(b.b, v) }
func (b *Buffer) Size() int       { return len(b.b) }
func (b *Buffer) Bytes() []byte   { return b.b }
func (b *Buffer) Write(p []byte)  { b.b = append(b.b, p...) }
func (b *Buffer) Reset()          { b.b = b.b[:0] }

func (b *Buffer) Patch32(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.b[off:], v)
}

func (b *Buffer) Patch64(off int, v uint64) {
	binary.LittleEndian.PutUint64(b.b[off:], v)
}

// SizeCounter only counts bytes.
type SizeCounter struct {
	n int
}

func (c *SizeCounter) Emit8(uint8)         { c.n++ }
func (c *SizeCounter) Emit16(uint16)       { c.n += 2 }
func (c *SizeCounter) Emit32(uint32)       { c.n += 4 }
func (c *SizeCounter) Emit64(uint64)       { c.n += 8 }
func (c *SizeCounter) Patch32(int, uint32) {}
func (c *SizeCounter) Size() int           { return c.n }

// FixedBufferSize is the capacity of a FixedBuffer, enough for any single
// x86-64 instruction plus a short sequence.
const FixedBufferSize = 32

// FixedBuffer is an allocation-free sink. Bytes past capacity are dropped
// and Err reports ErrSinkOverflow.
type FixedBuffer struct {
	buf [FixedBufferSize]byte
	n   int
	err error
}

func (f *FixedBuffer) put(p ...byte) {
	if f.n+len(p) > len(f.buf) {
		f.err = x64errors.ErrSinkOverflow
		return
	}
	f.n += copy(f.buf[f.n:], p)
}

func (f *FixedBuffer) Emit8(v uint8) { f.put(v) }

func (f *FixedBuffer) Emit16(v uint16) {
	var t [2]byte
	binary.LittleEndian.PutUint16(t[:], v)
	f.put(t[:]...)
}

func (f *FixedBuffer) Emit32(v uint32) {
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], v)
	f.put(t[:]...)
}

func (f *FixedBuffer) Emit64(v uint64) {
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], v)
	f.put(t[:]...)
}

func (f *FixedBuffer) Patch32(off int, v uint32) {
	if off+4 > f.n {
		f.err = x64errors.ErrSinkOverflow
		return
	}
	binary.LittleEndian.PutUint32(f.buf[off:], v)
}

func (f *FixedBuffer) Size() int     { return f.n }
func (f *FixedBuffer) Bytes() []byte { return f.buf[:f.n] }
func (f *FixedBuffer) Err() error    { return f.err }

func (f *FixedBuffer) Reset() {
	f.n = 0
	f.err = nil
}
