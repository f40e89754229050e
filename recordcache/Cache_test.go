package recordcache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dnsfwd/resolver/entities"
	"golang.org/x/net/dns/dnsmessage"
)

var (
	exampleCom = []byte("\x07example\x03com\x00")
	exampleOrg = []byte("\x07example\x03org\x00")
	epoch      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newRecord(name []byte, rtype dnsmessage.Type, ttl uint32, last byte) entities.Record {
	return entities.Record{
		Name:  name,
		RType: rtype,
		Class: dnsmessage.ClassINET,
		TTL:   ttl,
		RData: []byte{192, 0, 2, last},
	}
}

func TestLookupUntilExpiry(t *testing.T) {
	c := NewCache(0)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 60, 1), epoch)

	for _, offset := range []time.Duration{0, time.Second, 59 * time.Second, 59*time.Second + 999*time.Millisecond} {
		record, ok := c.Lookup(exampleCom, dnsmessage.TypeA, epoch.Add(offset))
		if !ok {
			t.Fatalf("Expected hit at +%v", offset)
		}
		if !record.ExpireAt.Equal(epoch.Add(time.Minute)) {
			t.Errorf("Expected expiry %v, got %v", epoch.Add(time.Minute), record.ExpireAt)
		}
	}

	if _, ok := c.Lookup(exampleCom, dnsmessage.TypeA, epoch.Add(time.Minute)); ok {
		t.Error("Expected miss at exactly insert time + TTL")
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Expected expired record to be removed, %d left", n)
	}
	if n := c.Buckets(); n != 0 {
		t.Errorf("Expected empty bucket to be removed, %d left", n)
	}
}

func TestLookupMissesOtherKeys(t *testing.T) {
	c := NewCache(0)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 60, 1), epoch)

	if _, ok := c.Lookup(exampleCom, dnsmessage.TypeAAAA, epoch); ok {
		t.Error("Expected miss for a different type")
	}
	if _, ok := c.Lookup(exampleOrg, dnsmessage.TypeA, epoch); ok {
		t.Error("Expected miss for a different name")
	}
}

func TestLookupReturnsFirstInserted(t *testing.T) {
	c := NewCache(0)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 30, 1), epoch)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 300, 2), epoch)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 3000, 3), epoch)

	record, ok := c.Lookup(exampleCom, dnsmessage.TypeA, epoch)
	if !ok || record.RData[3] != 1 {
		t.Fatalf("Expected the first inserted record, got %v (ok=%v)", record.RData, ok)
	}

	// The first record expires, the next one in insertion order takes its place.
	record, ok = c.Lookup(exampleCom, dnsmessage.TypeA, epoch.Add(30*time.Second))
	if !ok || record.RData[3] != 2 {
		t.Fatalf("Expected the second record, got %v (ok=%v)", record.RData, ok)
	}
	if n := c.Len(); n != 2 {
		t.Errorf("Expected 2 records after sweep, got %d", n)
	}
}

func TestInsertDoesNotDeduplicate(t *testing.T) {
	c := NewCache(0)
	r := newRecord(exampleCom, dnsmessage.TypeA, 60, 1)
	c.Insert(r, epoch)
	c.Insert(r, epoch)

	if n := c.Len(); n != 2 {
		t.Errorf("Expected 2 records, got %d", n)
	}
	if n := c.Buckets(); n != 1 {
		t.Errorf("Expected 1 bucket, got %d", n)
	}
}

func TestZeroTTLIsNeverServed(t *testing.T) {
	c := NewCache(0)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 0, 1), epoch)

	if _, ok := c.Lookup(exampleCom, dnsmessage.TypeA, epoch); ok {
		t.Error("Expected a zero TTL record to be a miss")
	}
}

func TestFlush(t *testing.T) {
	c := NewCache(0)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 60, 1), epoch)
	c.Insert(newRecord(exampleOrg, dnsmessage.TypeA, 60, 2), epoch)
	c.Flush()

	if n := c.Buckets(); n != 0 {
		t.Errorf("Expected no buckets after flush, got %d", n)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := NewCache(0)
	fresh := newRecord(exampleCom, dnsmessage.TypeA, 3600, 1)
	fresh.Authoritative = true
	c.Insert(fresh, epoch)
	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 7200, 2), epoch)
	c.Insert(newRecord(exampleOrg, dnsmessage.TypeA, 10, 3), epoch)

	var buf bytes.Buffer
	if err := c.Snapshot(&buf); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Restore a minute later: example.org expired after it was saved.
	later := epoch.Add(time.Minute)
	restored := NewCache(0)
	n, err := restored.Restore(&buf, later)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 records restored, got %d", n)
	}

	record, ok := restored.Lookup(exampleCom, dnsmessage.TypeA, later)
	if !ok {
		t.Fatal("Expected a hit for the unexpired record")
	}
	if record.RData[3] != 1 || !record.Authoritative {
		t.Errorf("Expected the first record with AA, got %+v", record)
	}
	if !record.ExpireAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("Expected expiry to survive the round trip, got %v", record.ExpireAt)
	}

	if _, ok := restored.Lookup(exampleOrg, dnsmessage.TypeA, later); ok {
		t.Error("Expected a miss for the record that expired after saving")
	}
}

func TestRestoreEmptyAndCorrupt(t *testing.T) {
	c := NewCache(0)
	if n, err := c.Restore(strings.NewReader(""), epoch); err != nil || n != 0 {
		t.Errorf("Expected empty input to restore nothing without error, got n=%d err=%v", n, err)
	}

	for _, input := range []string{
		"{not json",
		`{"version":99,"records":[]}`,
		`{"version":1,"records":[{"name":"AQ==","type":1}]}`,
	} {
		_, err := c.Restore(strings.NewReader(input), epoch)
		if !errors.Is(err, ErrCorruptSnapshot) {
			t.Errorf("Expected ErrCorruptSnapshot for %q, got %v", input, err)
		}
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snapshot.json")

	c := NewCache(0)
	if n, err := c.LoadFile(path, epoch); err != nil || n != 0 {
		t.Fatalf("Expected missing file to load nothing, got n=%d err=%v", n, err)
	}

	c.Insert(newRecord(exampleCom, dnsmessage.TypeA, 3600, 9), epoch)
	if err := c.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	// Overwrite with a second save.
	c.Insert(newRecord(exampleOrg, dnsmessage.TypeA, 3600, 8), epoch)
	if err := c.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	loaded := NewCache(0)
	n, err := loaded.LoadFile(path, epoch)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 records, got %d", n)
	}
	if _, ok := loaded.Lookup(exampleOrg, dnsmessage.TypeA, epoch); !ok {
		t.Error("Expected the second save to be the one on disk")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestLoadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(0)
	if n, err := c.LoadFile(path, epoch); err != nil || n != 0 {
		t.Errorf("Expected empty file to load nothing, got n=%d err=%v", n, err)
	}
}
