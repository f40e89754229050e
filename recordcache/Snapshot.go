package recordcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"dnsfwd/resolver/entities"
	"golang.org/x/net/dns/dnsmessage"
)

const snapshotVersion = 1

// ErrCorruptSnapshot is returned when a snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt cache snapshot")

type snapshotRecord struct {
	Name          []byte    `json:"name"`
	Type          uint16    `json:"type"`
	Class         uint16    `json:"class"`
	TTL           uint32    `json:"ttl"`
	RData         []byte    `json:"rdata"`
	Authoritative bool      `json:"authoritative,omitempty"`
	ExpireAt      time.Time `json:"expireAt"`
}

type snapshotFile struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"savedAt"`
	Records []snapshotRecord `json:"records"`
}

// Snapshot writes every bucket to w. Stale records are written too: they carry
// their absolute expiry and are dropped on first lookup after a restore.
func (c *Cache) Snapshot(w io.Writer) error {
	c.mu.Lock()
	items := c.buckets.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	sf := snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
	}
	for _, key := range keys {
		for _, record := range items[key].Object.(*bucket).records {
			sf.Records = append(sf.Records, snapshotRecord{
				Name:          record.Name,
				Type:          uint16(record.RType),
				Class:         uint16(record.Class),
				TTL:           record.TTL,
				RData:         record.RData,
				Authoritative: record.Authoritative,
				ExpireAt:      record.ExpireAt,
			})
		}
	}
	c.mu.Unlock()

	return json.NewEncoder(w).Encode(&sf)
}

// Restore replaces the cache contents with the snapshot read from r and returns
// the number of records loaded. An empty reader leaves the cache empty.
func (c *Cache) Restore(r io.Reader, now time.Time) (int, error) {
	var sf snapshotFile
	if err := json.NewDecoder(r).Decode(&sf); err != nil {
		if err == io.EOF {
			c.Flush()
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if sf.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, sf.Version)
	}
	for i, sr := range sf.Records {
		if len(sr.Name) == 0 || sr.Name[len(sr.Name)-1] != 0 {
			return 0, fmt.Errorf("%w: record %d has an invalid name", ErrCorruptSnapshot, i)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.buckets.Flush()
	for _, sr := range sf.Records {
		c.insert(entities.Record{
			Name:          sr.Name,
			RType:         dnsmessage.Type(sr.Type),
			Class:         dnsmessage.Class(sr.Class),
			TTL:           sr.TTL,
			RData:         sr.RData,
			Authoritative: sr.Authoritative,
			ExpireAt:      sr.ExpireAt,
		}, now)
	}
	return len(sf.Records), nil
}

// SaveFile writes the snapshot to path, replacing the previous one atomically.
func (c *Cache) SaveFile(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err = c.Snapshot(f); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// LoadFile restores the cache from the snapshot at path.
// A missing file is not an error and leaves the cache empty.
func (c *Cache) LoadFile(path string, now time.Time) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	return c.Restore(f, now)
}
