// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

// Package ips decodes and applies IPS binary patches.
//
// An IPS stream is the 5-byte magic "PATCH", a sequence of records,
// and the 3-byte sentinel "EOF". Each record is a 3-byte big-endian
// offset and a 2-byte big-endian length: a positive length is followed
// by that many literal bytes, a zero length marks a run-length record
// (2-byte big-endian repeat count, one fill byte). An optional 3-byte
// big-endian value after the sentinel resizes the output to exactly
// that length (the truncation extension).
//
// Parsing and application are pure: no I/O, no side effects, and
// byte-identical output for identical inputs. A malformed stream
// yields a *FormatError and no output.
package ips

import (
	"bytes"
	"fmt"
)

// magic is the required stream header.
const magic = "PATCH"

// sentinel terminates the record stream. A record offset can therefore
// never be 0x454F46 ("EOF"); that limitation is inherent to the format.
var sentinel = []byte{'E', 'O', 'F'}

// FormatError reports a malformed, truncated, or inconsistent patch
// stream. Position is the byte offset within the patch at which
// decoding failed.
type FormatError struct {
	Position int
	Reason   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ips: invalid patch at byte %d: %s", e.Position, e.Reason)
}

// Record is one decoded patch instruction. Records are applied in
// stream order; later records at overlapping offsets win.
type Record interface {
	// TargetOffset is the output position the record writes at.
	TargetOffset() int

	// Span is the number of output bytes the record covers.
	Span() int

	// apply writes the record into out, growing it (zero-filled) if
	// the record extends past the current end.
	apply(out []byte) []byte
}

// WriteRecord places literal bytes verbatim at Offset.
type WriteRecord struct {
	Offset int
	Data   []byte
}

// FillRecord writes Count copies of Byte starting at Offset.
type FillRecord struct {
	Offset int
	Count  int
	Byte   byte
}

func (r WriteRecord) TargetOffset() int { return r.Offset }
func (r WriteRecord) Span() int         { return len(r.Data) }

func (r WriteRecord) apply(out []byte) []byte {
	out = grow(out, r.Offset+len(r.Data))
	copy(out[r.Offset:], r.Data)
	return out
}

func (r FillRecord) TargetOffset() int { return r.Offset }
func (r FillRecord) Span() int         { return r.Count }

func (r FillRecord) apply(out []byte) []byte {
	out = grow(out, r.Offset+r.Count)
	for i := 0; i < r.Count; i++ {
		out[r.Offset+i] = r.Byte
	}
	return out
}

// Program is a fully decoded patch: an ordered record sequence plus
// the optional truncation directive. Immutable once parsed.
type Program struct {
	Records []Record

	// TruncateTo is the exact output length requested by the
	// truncation extension. Valid only when Truncate is true.
	TruncateTo int
	Truncate   bool
}

// Parse decodes an IPS patch stream into a Program. The returned
// Program does not alias patch; callers may reuse the input buffer.
func Parse(patch []byte) (*Program, error) {
	if len(patch) < len(magic) || string(patch[:len(magic)]) != magic {
		return nil, &FormatError{Position: 0, Reason: fmt.Sprintf("missing %q header", magic)}
	}

	program := &Program{}
	pos := len(magic)

	for {
		if len(patch)-pos < 3 {
			return nil, &FormatError{Position: pos, Reason: "record stream ends without EOF sentinel"}
		}
		if bytes.Equal(patch[pos:pos+3], sentinel) {
			pos += 3
			break
		}

		offset := be24(patch[pos:])
		pos += 3

		if len(patch)-pos < 2 {
			return nil, &FormatError{Position: pos, Reason: "truncated record length"}
		}
		length := be16(patch[pos:])
		pos += 2

		if length == 0 {
			// Run-length record: repeat count and fill byte.
			if len(patch)-pos < 3 {
				return nil, &FormatError{Position: pos, Reason: "truncated run-length record"}
			}
			count := be16(patch[pos:])
			fill := patch[pos+2]
			pos += 3
			program.Records = append(program.Records, FillRecord{Offset: offset, Count: count, Byte: fill})
			continue
		}

		if len(patch)-pos < length {
			return nil, &FormatError{
				Position: pos,
				Reason:   fmt.Sprintf("record claims %d data bytes, %d remain", length, len(patch)-pos),
			}
		}
		data := make([]byte, length)
		copy(data, patch[pos:pos+length])
		pos += length
		program.Records = append(program.Records, WriteRecord{Offset: offset, Data: data})
	}

	// Truncation extension: at least 3 bytes after the sentinel.
	// Fewer than 3 trailing bytes means no directive (trailing junk
	// shorter than a length field is ignored, matching common IPS
	// tooling).
	if len(patch)-pos >= 3 {
		program.TruncateTo = be24(patch[pos:])
		program.Truncate = true
	}

	return program, nil
}

// Apply runs the program against source and returns the patched
// output. The source slice is not modified.
func (p *Program) Apply(source []byte) []byte {
	out := make([]byte, len(source))
	copy(out, source)

	for _, record := range p.Records {
		out = record.apply(out)
	}

	if p.Truncate {
		if p.TruncateTo <= len(out) {
			out = out[:p.TruncateTo]
		} else {
			out = grow(out, p.TruncateTo)
		}
	}

	return out
}

// Apply parses patch and applies it to source in one step.
func Apply(source, patch []byte) ([]byte, error) {
	program, err := Parse(patch)
	if err != nil {
		return nil, err
	}
	return program.Apply(source), nil
}

// grow extends out to at least n bytes, zero-filling the gap.
func grow(out []byte, n int) []byte {
	if n <= len(out) {
		return out
	}
	return append(out, make([]byte, n-len(out))...)
}

// be24 reads a 3-byte big-endian unsigned integer.
func be24(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// be16 reads a 2-byte big-endian unsigned integer.
func be16(b []byte) int {
	return int(b[0])<<8 | int(b[1])
}
