package safemdbx

import (
	"bytes"
	"fmt"
	"testing"
)

func fillKeys(t *testing.T, env *Env, n int) []string {
	t.Helper()
	var keys []string
	err := env.Update(func(txn *Txn) error {
		dbi, err := txn.OpenRoot(0)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			k := fmt.Sprintf("key-%03d", i)
			keys = append(keys, k)
			if err := txn.Put(dbi, []byte(k), []byte("val-"+k), Upsert); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func newDupEnv(t *testing.T, rows map[string][]string) *Env {
	t.Helper()
	env := newTestEnv(t, Config{})
	err := env.Update(func(txn *Txn) error {
		dbi, err := txn.CreateDBI("dup", DupSort)
		if err != nil {
			return err
		}
		for key, vals := range rows {
			for _, val := range vals {
				if err := txn.Put(dbi, []byte(key), []byte(val), Upsert); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func withDupCursor(t *testing.T, env *Env, fn func(cur *Cursor)) {
	t.Helper()
	err := env.View(func(txn *Txn) error {
		dbi, err := txn.OpenDBI("dup", DupSort)
		if err != nil {
			return err
		}
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()
		fn(cur)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func collectScan(t *testing.T, cur *Cursor, opts ScanOptions) []string {
	t.Helper()
	var got []string
	for item, err := range cur.Scan(opts) {
		if err != nil {
			t.Fatalf("scan error: %v", err)
		}
		got = append(got, string(item.Key))
	}
	return got
}

func TestScanFull(t *testing.T) {
	env := newTestEnv(t, Config{})
	keys := fillKeys(t, env, 10)

	err := env.View(func(txn *Txn) error {
		dbi, _ := txn.OpenRoot(0)
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		got := collectScan(t, cur, ScanOptions{})
		if len(got) != len(keys) {
			t.Fatalf("scanned %d keys, want %d", len(got), len(keys))
		}
		for i := range keys {
			if got[i] != keys[i] {
				t.Errorf("key[%d] = %q, want %q", i, got[i], keys[i])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanRange(t *testing.T) {
	env := newTestEnv(t, Config{})
	fillKeys(t, env, 10)

	err := env.View(func(txn *Txn) error {
		dbi, _ := txn.OpenRoot(0)
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		// Exclusive stop.
		got := collectScan(t, cur, ScanOptions{
			Start: []byte("key-003"),
			Stop:  []byte("key-006"),
		})
		want := []string{"key-003", "key-004", "key-005"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		// Inclusive stop.
		got = collectScan(t, cur, ScanOptions{
			Start:       []byte("key-003"),
			Stop:        []byte("key-006"),
			IncludeStop: true,
		})
		if len(got) != 4 || got[3] != "key-006" {
			t.Errorf("inclusive stop: got %v", got)
		}

		// Start between keys positions at the next one.
		got = collectScan(t, cur, ScanOptions{
			Start: []byte("key-003x"),
			Stop:  []byte("key-005"),
		})
		if len(got) != 1 || got[0] != "key-004" {
			t.Errorf("between-keys start: got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanReverse(t *testing.T) {
	env := newTestEnv(t, Config{})
	fillKeys(t, env, 5)

	err := env.View(func(txn *Txn) error {
		dbi, _ := txn.OpenRoot(0)
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		got := collectScan(t, cur, ScanOptions{Reverse: true})
		want := []string{"key-004", "key-003", "key-002", "key-001", "key-000"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		// Reverse from an exact existing key.
		got = collectScan(t, cur, ScanOptions{
			Start:   []byte("key-002"),
			Reverse: true,
		})
		if len(got) != 3 || got[0] != "key-002" || got[2] != "key-000" {
			t.Errorf("reverse from existing key: got %v", got)
		}

		// Reverse start between keys steps back to the preceding key.
		got = collectScan(t, cur, ScanOptions{
			Start:   []byte("key-002x"),
			Reverse: true,
		})
		if len(got) != 3 || got[0] != "key-002" {
			t.Errorf("reverse between-keys start: got %v", got)
		}

		// Reverse start past the last key starts at the last key.
		got = collectScan(t, cur, ScanOptions{
			Start:   []byte("zzz"),
			Reverse: true,
		})
		if len(got) != 5 || got[0] != "key-004" {
			t.Errorf("reverse past-end start: got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanWhile(t *testing.T) {
	env := newTestEnv(t, Config{})
	fillKeys(t, env, 10)

	err := env.View(func(txn *Txn) error {
		dbi, _ := txn.OpenRoot(0)
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		got := collectScan(t, cur, ScanOptions{
			While: func(key, _ []byte) bool {
				return bytes.Compare(key, []byte("key-004")) < 0
			},
		})
		if len(got) != 4 || got[3] != "key-003" {
			t.Errorf("while-bounded scan: got %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanEarlyBreak(t *testing.T) {
	env := newTestEnv(t, Config{})
	fillKeys(t, env, 10)

	err := env.View(func(txn *Txn) error {
		dbi, _ := txn.OpenRoot(0)
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		n := 0
		for _, err := range cur.Scan(ScanOptions{}) {
			if err != nil {
				t.Fatal(err)
			}
			n++
			if n == 3 {
				break
			}
		}
		if n != 3 {
			t.Errorf("consumed %d items, want 3", n)
		}

		// The cursor remains usable after abandoning the sequence.
		if _, _, ok, err := cur.First(); err != nil || !ok {
			t.Errorf("First after break: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanDupsFlattened(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2"},
		"b": {"3"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		var got [][2]string
		for item, err := range cur.ScanDups() {
			if err != nil {
				t.Fatalf("scan-dups error: %v", err)
			}
			got = append(got, [2]string{string(item.Key), string(item.Val)})
		}
		want := [][2]string{{"a", "1"}, {"a", "2"}, {"b", "3"}}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("item[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})
}

func TestFlatDupIterStates(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2"},
		"b": {"3"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		it := &flatDupIter{cur: cur}
		if it.state != flatOnKey || it.primed {
			t.Fatalf("initial state = %d primed=%v", it.state, it.primed)
		}

		step := func(wantKey, wantVal string, wantState int) {
			t.Helper()
			item, ok, err := it.next()
			if err != nil || !ok {
				t.Fatalf("next: ok=%v err=%v", ok, err)
			}
			if string(item.Key) != wantKey || string(item.Val) != wantVal {
				t.Errorf("next = (%q,%q), want (%q,%q)", item.Key, item.Val, wantKey, wantVal)
			}
			if it.state != wantState {
				t.Errorf("state after (%q,%q) = %d, want %d", wantKey, wantVal, it.state, wantState)
			}
		}

		step("a", "1", flatInDups)
		step("a", "2", flatInDups)
		// Duplicates of "a" exhausted: the iterator crosses to key "b",
		// not to termination.
		step("b", "3", flatInDups)

		if _, ok, err := it.next(); err != nil || ok {
			t.Fatalf("exhaustion: ok=%v err=%v", ok, err)
		}
		if it.state != flatDone {
			t.Errorf("terminal state = %d, want %d", it.state, flatDone)
		}
		// Terminal state is sticky.
		if _, ok, _ := it.next(); ok {
			t.Error("next after done returned an item")
		}
	})
}

func TestFlatDupIterEmpty(t *testing.T) {
	env := newDupEnv(t, nil)

	withDupCursor(t, env, func(cur *Cursor) {
		it := &flatDupIter{cur: cur}
		if _, ok, err := it.next(); err != nil || ok {
			t.Fatalf("empty db: ok=%v err=%v", ok, err)
		}
		if it.state != flatDone {
			t.Errorf("state = %d, want %d", it.state, flatDone)
		}
	})
}

func TestNextDupStaysOnKey(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2"},
		"b": {"3"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		if _, ok, err := cur.Seek([]byte("a")); err != nil || !ok {
			t.Fatalf("Seek: ok=%v err=%v", ok, err)
		}
		if _, _, ok, err := cur.NextDup(); err != nil || !ok {
			t.Fatalf("NextDup to second dup: ok=%v err=%v", ok, err)
		}
		// Duplicates of "a" exhausted; NextDup must not fall through to "b".
		if _, _, ok, err := cur.NextDup(); err != nil || ok {
			t.Errorf("NextDup past last dup: ok=%v err=%v, want ok=false", ok, err)
		}
	})
}

func TestDupsOf(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2", "3"},
		"b": {"9"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		var got []string
		for val, err := range cur.DupsOf([]byte("a")) {
			if err != nil {
				t.Fatalf("dups-of error: %v", err)
			}
			got = append(got, string(val))
		}
		if len(got) != 3 || got[0] != "1" || got[2] != "3" {
			t.Errorf("DupsOf(a) = %v", got)
		}

		// Absent key yields nothing.
		for val, err := range cur.DupsOf([]byte("zzz")) {
			t.Errorf("DupsOf(zzz) yielded (%q, %v)", val, err)
		}
	})
}

func TestDupRows(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2"},
		"b": {"3"},
		"c": {"4", "5", "6"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		var keys []string
		var sizes []int
		for row, err := range cur.DupRows() {
			if err != nil {
				t.Fatalf("dup-rows error: %v", err)
			}
			keys = append(keys, string(row.Key))
			sizes = append(sizes, len(row.Vals))
		}
		if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
			t.Errorf("row keys = %v", keys)
		}
		if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 1 || sizes[2] != 3 {
			t.Errorf("row sizes = %v", sizes)
		}
	})
}

func TestCountDup(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"1", "2", "3"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		n, found, err := cur.CountDupOf([]byte("a"))
		if err != nil || !found {
			t.Fatalf("CountDupOf: found=%v err=%v", found, err)
		}
		if n != 3 {
			t.Errorf("count = %d, want 3", n)
		}

		_, found, err = cur.CountDupOf([]byte("absent"))
		if err != nil || found {
			t.Errorf("absent key: found=%v err=%v", found, err)
		}
	})
}

func TestSeekBothRange(t *testing.T) {
	env := newDupEnv(t, map[string][]string{
		"a": {"10", "20", "30"},
	})

	withDupCursor(t, env, func(cur *Cursor) {
		v, ok, err := cur.SeekBothRange([]byte("a"), []byte("15"))
		if err != nil || !ok {
			t.Fatalf("SeekBothRange: ok=%v err=%v", ok, err)
		}
		if string(v) != "20" {
			t.Errorf("val = %q, want %q", v, "20")
		}

		ok, err = cur.SeekBoth([]byte("a"), []byte("20"))
		if err != nil || !ok {
			t.Errorf("SeekBoth exact: ok=%v err=%v", ok, err)
		}
		ok, err = cur.SeekBoth([]byte("a"), []byte("25"))
		if err != nil || ok {
			t.Errorf("SeekBoth missing pair: ok=%v err=%v", ok, err)
		}
	})
}
