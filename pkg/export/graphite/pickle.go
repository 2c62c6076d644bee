// SPDX-License-Identifier: GPL-3.0-or-later

package graphite

import (
	"bytes"
	"encoding/binary"
	"math"
)

// metricPoint is one (path, (timestamp, value)) entry in a Graphite batch.
type metricPoint struct {
	Path  string
	Time  int64
	Value float64
}

// Pickle protocol 2 opcodes, the subset a metric batch needs. Graphite's
// receiver unpickles the payload with the reference Python implementation,
// so the encoding below reproduces CPython's output byte for byte: every
// container and string is memoized with a PUT opcode, lists of one element
// use APPEND, longer lists use MARK/APPENDS batches of a thousand.
const (
	opProto      = 0x80
	opEmptyList  = ']'
	opMark       = '('
	opAppend     = 'a'
	opAppends    = 'e'
	opBinPut     = 'q'
	opLongBinPut = 'r'
	opBinUnicode = 'X'
	opBinInt     = 'J'
	opBinInt1    = 'K'
	opBinInt2    = 'M'
	opLong1      = 0x8a
	opBinFloat   = 'G'
	opTuple2     = 0x86
	opStop       = '.'
)

const pickleBatchSize = 1000

type pickleEncoder struct {
	buf  bytes.Buffer
	memo int
}

// encodePickle serializes a batch as a pickled list of (path, (ts, value))
// tuples, timestamps as integers and values as doubles.
func encodePickle(points []metricPoint) []byte {
	var e pickleEncoder
	e.buf.WriteByte(opProto)
	e.buf.WriteByte(2)
	e.buf.WriteByte(opEmptyList)
	e.put()

	switch n := len(points); {
	case n == 0:
	case n == 1:
		e.point(points[0])
		e.buf.WriteByte(opAppend)
	default:
		for start := 0; start < n; start += pickleBatchSize {
			end := min(start+pickleBatchSize, n)
			e.buf.WriteByte(opMark)
			for _, p := range points[start:end] {
				e.point(p)
			}
			e.buf.WriteByte(opAppends)
		}
	}

	e.buf.WriteByte(opStop)
	return e.buf.Bytes()
}

func (e *pickleEncoder) point(p metricPoint) {
	e.string(p.Path)
	e.int(p.Time)
	e.float(p.Value)
	e.buf.WriteByte(opTuple2)
	e.put()
	e.buf.WriteByte(opTuple2)
	e.put()
}

// put memoizes the value just written, as CPython does for every string,
// tuple and list it pickles.
func (e *pickleEncoder) put() {
	if e.memo < 256 {
		e.buf.WriteByte(opBinPut)
		e.buf.WriteByte(byte(e.memo))
	} else {
		e.buf.WriteByte(opLongBinPut)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(e.memo))
		e.buf.Write(b[:])
	}
	e.memo++
}

func (e *pickleEncoder) string(s string) {
	e.buf.WriteByte(opBinUnicode)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	e.buf.Write(b[:])
	e.buf.WriteString(s)
	e.put()
}

func (e *pickleEncoder) int(v int64) {
	switch {
	case v >= 0 && v < 1<<8:
		e.buf.WriteByte(opBinInt1)
		e.buf.WriteByte(byte(v))
	case v >= 0 && v < 1<<16:
		e.buf.WriteByte(opBinInt2)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		e.buf.Write(b[:])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		e.buf.WriteByte(opBinInt)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
		e.buf.Write(b[:])
	default:
		e.long(v)
	}
}

// long writes LONG1: the minimal little-endian two's-complement encoding.
// Only values outside the int32 range reach it.
func (e *pickleEncoder) long(v int64) {
	var b [9]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(v))

	n := 8
	if v > 0 {
		for n > 1 && b[n-1] == 0 {
			n--
		}
		if b[n-1]&0x80 != 0 {
			b[n] = 0
			n++
		}
	} else {
		for n > 1 && b[n-1] == 0xff && b[n-2]&0x80 != 0 {
			n--
		}
	}

	e.buf.WriteByte(opLong1)
	e.buf.WriteByte(byte(n))
	e.buf.Write(b[:n])
}

func (e *pickleEncoder) float(v float64) {
	e.buf.WriteByte(opBinFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf.Write(b[:])
}
