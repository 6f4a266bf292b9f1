package safemdbx

import (
	"bytes"
	"iter"
)

// Item is one key/value pair produced by an iteration. Both slices are
// copies owned by the caller.
type Item struct {
	Key []byte
	Val []byte
}

// ScanOptions bounds a Scan.
type ScanOptions struct {
	// Start is the first key of the scan (inclusive, by seek-range).
	// Nil starts at the first key (last for reverse scans).
	Start []byte

	// Stop bounds the scan. Exclusive unless IncludeStop. Nil scans to
	// exhaustion.
	Stop []byte

	// IncludeStop makes the Stop bound inclusive.
	IncludeStop bool

	// Reverse scans from Start (or the last key) downward.
	Reverse bool

	// While, when set, is evaluated per item; the scan stops before the
	// first item for which it returns false.
	While func(key, val []byte) bool
}

// Scan returns a lazy, single-pass sequence of key/value pairs over the
// cursor. The sequence is fully synchronous and pull-based: abandoning it
// requires no cleanup beyond closing the cursor. A fresh cursor restarts
// the scan.
//
// Iteration errors are yielded once as the second element and end the
// sequence; exhaustion ends it silently.
func (c *Cursor) Scan(opts ScanOptions) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		key, val, ok, err := c.scanStart(opts)
		for {
			if err != nil {
				yield(Item{}, err)
				return
			}
			if !ok || c.pastStop(key, opts) {
				return
			}
			if opts.While != nil && !opts.While(key, val) {
				return
			}
			if !yield(Item{Key: key, Val: val}, nil) {
				return
			}
			if opts.Reverse {
				key, val, ok, err = c.Prev()
			} else {
				key, val, ok, err = c.Next()
			}
		}
	}
}

func (c *Cursor) scanStart(opts ScanOptions) (key, val []byte, ok bool, err error) {
	if opts.Start == nil {
		if opts.Reverse {
			return c.Last()
		}
		return c.First()
	}
	key, val, ok, err = c.SeekRange(opts.Start)
	if err != nil || !opts.Reverse {
		return key, val, ok, err
	}
	// Reverse: Start is an inclusive upper bound. SeekRange found the
	// first key >= Start; step back when it overshot, fall back to the
	// last key when nothing is >= Start.
	if !ok {
		return c.Last()
	}
	if !bytes.Equal(key, opts.Start) {
		return c.Prev()
	}
	return key, val, ok, err
}

func (c *Cursor) pastStop(key []byte, opts ScanOptions) bool {
	if opts.Stop == nil {
		return false
	}
	cmp := bytes.Compare(key, opts.Stop)
	if cmp == 0 {
		return !opts.IncludeStop
	}
	if opts.Reverse {
		return cmp < 0
	}
	return cmp > 0
}

// DupsOf returns a lazy sequence over the ordered duplicates of exactly
// one key in a DupSort database. An absent key yields nothing.
func (c *Cursor) DupsOf(key []byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		val, ok, err := c.Seek(key)
		for {
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(val, nil) {
				return
			}
			_, val, ok, err = c.NextDup()
		}
	}
}

// Flattened dup-sort iteration states. The transition that is easy to get
// wrong — duplicates of a key exhausted, advance to the NEXT KEY'S FIRST
// duplicate rather than terminating or skipping — is the
// flatInDups -> flatOnKey edge, exercised directly by unit tests.
const (
	flatOnKey int = iota
	flatInDups
	flatDone
)

type flatDupIter struct {
	cur    *Cursor
	state  int
	primed bool
}

// next produces one (key, value) element, ok=false on exhaustion.
func (it *flatDupIter) next() (Item, bool, error) {
	for {
		switch it.state {
		case flatOnKey:
			var key, val []byte
			var ok bool
			var err error
			if !it.primed {
				it.primed = true
				key, val, ok, err = it.cur.First()
			} else {
				key, val, ok, err = it.cur.NextNoDup()
			}
			if err != nil {
				it.state = flatDone
				return Item{}, false, err
			}
			if !ok {
				it.state = flatDone
				return Item{}, false, nil
			}
			it.state = flatInDups
			return Item{Key: key, Val: val}, true, nil

		case flatInDups:
			key, val, ok, err := it.cur.NextDup()
			if err != nil {
				it.state = flatDone
				return Item{}, false, err
			}
			if ok {
				return Item{Key: key, Val: val}, true, nil
			}
			// Duplicates of the current key exhausted: move on to the
			// next key, never terminate here.
			it.state = flatOnKey

		default:
			return Item{}, false, nil
		}
	}
}

// ScanDups returns the flattened iteration over a DupSort database: every
// key in order, and for each key every duplicate in order, as (outer key,
// inner value) pairs. Over {"a": [1, 2], "b": [3]} it yields exactly
// ("a",1), ("a",2), ("b",3).
func (c *Cursor) ScanDups() iter.Seq2[Item, error] {
	it := &flatDupIter{cur: c}
	return func(yield func(Item, error) bool) {
		for {
			item, ok, err := it.next()
			if err != nil {
				yield(Item{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// DupRow is one key of a DupSort database with its ordered duplicates.
type DupRow struct {
	Key  []byte
	Vals [][]byte
}

// DupRows returns a lazy sequence of per-key rows over a DupSort
// database, preserving key order and duplicate order within each row.
func (c *Cursor) DupRows() iter.Seq2[DupRow, error] {
	return func(yield func(DupRow, error) bool) {
		key, val, ok, err := c.First()
		for {
			if err != nil {
				yield(DupRow{}, err)
				return
			}
			if !ok {
				return
			}
			row := DupRow{Key: key, Vals: [][]byte{val}}
			for {
				_, dv, dok, derr := c.NextDup()
				if derr != nil {
					yield(DupRow{}, derr)
					return
				}
				if !dok {
					break
				}
				row.Vals = append(row.Vals, dv)
			}
			if !yield(row, nil) {
				return
			}
			key, val, ok, err = c.NextNoDup()
		}
	}
}
