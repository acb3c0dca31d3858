// Package framer reassembles newline-terminated records from a byte stream
// delivered in arbitrary chunk sizes.
package framer

import "bytes"

// Number of pending bytes allowed before an unterminated record is forced
// out as a record boundary.
const DefaultMaxPending = 4096

// A unit of input extracted by the framer.
//
// Terminated records end with a newline and trigger an echo. Unterminated
// records are produced by forced flushes (pending buffer full, or leftover
// bytes at end of stream) and are persisted without an echo decision of
// their own.
type Record struct {
	Data       []byte
	Terminated bool
}

// Splits a byte stream into newline-terminated records.
//
// Bytes that do not yet form a complete record are buffered between calls
// to [Framer.Feed]. The pending buffer is bounded by maxPending; when the
// bound is reached without a newline, the entire pending content is emitted
// as an unterminated record so memory use stays bounded.
type Framer struct {
	pending    []byte
	maxPending int
}

// Creates a framer with the given pending-byte bound.
//
// A maxPending of zero or less disables the bound; the pending buffer grows
// until a newline arrives.
func New(maxPending int) *Framer {
	return &Framer{maxPending: maxPending}
}

// Consumes newly received bytes and returns every completed record, in order.
//
// Each maximal newline-terminated prefix of the pending bytes becomes one
// terminated record, newline included. If the remainder reaches the
// pending-byte bound, it is emitted as a final unterminated record. Record
// data is an independent copy; callers may retain it across calls.
func (f *Framer) Feed(p []byte) []Record {
	f.pending = append(f.pending, p...)

	var records []Record
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		records = append(records, Record{
			Data:       copyBytes(f.pending[:i+1]),
			Terminated: true,
		})
		f.pending = f.pending[i+1:]
	}

	if f.maxPending > 0 && len(f.pending) >= f.maxPending {
		records = append(records, Record{Data: copyBytes(f.pending)})
		f.pending = f.pending[:0]
	}

	return records
}

// Drains any trailing unterminated bytes at end of stream.
//
// Returns false if nothing is pending.
func (f *Framer) Flush() (Record, bool) {
	if len(f.pending) == 0 {
		return Record{}, false
	}
	rec := Record{Data: copyBytes(f.pending)}
	f.pending = f.pending[:0]
	return rec, true
}

// Number of buffered bytes not yet part of a completed record.
func (f *Framer) Pending() int {
	return len(f.pending)
}

func copyBytes(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
