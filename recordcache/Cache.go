package recordcache

import (
	"encoding/binary"
	"sync"
	"time"

	"dnsfwd/resolver/entities"
	"github.com/patrickmn/go-cache"
	"golang.org/x/net/dns/dnsmessage"
)

// DefaultPurgeInterval is how often expired buckets are reclaimed.
const DefaultPurgeInterval = 10 * time.Minute

type bucket struct {
	records  []entities.Record
	expireAt time.Time
}

// Cache maps (name, type) to the records learned for it, in arrival order.
//
// Records expire lazily: Lookup drops stale entries from the bucket it reads.
// Each bucket is held in a go-cache store with the expiry of its freshest record,
// so the janitor reclaims buckets nobody asks for again.
type Cache struct {
	// mu serialises every read-modify-write of a bucket.
	mu      sync.Mutex
	buckets *cache.Cache
}

// NewCache returns an empty cache whose janitor runs every purgeInterval.
// A non-positive interval uses the default of ten minutes.
func NewCache(purgeInterval time.Duration) *Cache {
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}
	return &Cache{
		buckets: cache.New(cache.NoExpiration, purgeInterval),
	}
}

func generateKey(name []byte, rtype dnsmessage.Type) string {
	key := make([]byte, 0, len(name)+2)
	key = append(key, name...)
	key = binary.BigEndian.AppendUint16(key, uint16(rtype))
	return string(key)
}

// Lookup returns the first fresh record for (name, rtype) at now.
// Records whose expiry is at or before now are removed from the bucket first.
func (c *Cache) Lookup(name []byte, rtype dnsmessage.Type, now time.Time) (entities.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := generateKey(name, rtype)
	v, ok := c.buckets.Get(key)
	if !ok {
		return entities.Record{}, false
	}
	b := v.(*bucket)

	fresh := b.records[:0:0]
	for _, record := range b.records {
		if !record.Expired(now) {
			fresh = append(fresh, record)
		}
	}

	if len(fresh) == 0 {
		c.buckets.Delete(key)
		return entities.Record{}, false
	}

	if len(fresh) != len(b.records) {
		b.records = fresh
	}
	return b.records[0], true
}

// Insert appends record to its bucket, stamping it to expire TTL seconds after now.
// Identical records are not merged.
func (c *Cache) Insert(record entities.Record, now time.Time) {
	record.ExpireAt = now.Add(time.Duration(record.TTL) * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(record, now)
}

func (c *Cache) insert(record entities.Record, now time.Time) {
	key := generateKey(record.Name, record.RType)

	var b *bucket
	if v, ok := c.buckets.Get(key); ok {
		b = v.(*bucket)
	} else {
		b = &bucket{}
	}

	b.records = append(b.records, record)
	if record.ExpireAt.After(b.expireAt) {
		b.expireAt = record.ExpireAt
	}

	// go-cache treats 0 as its default expiration, which would keep the bucket forever.
	d := b.expireAt.Sub(now)
	if d <= 0 {
		d = time.Nanosecond
	}
	c.buckets.Set(key, b, d)
}

// Len returns the number of records held, stale ones included.
func (c *Cache) Len() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.buckets.Items() {
		n += len(item.Object.(*bucket).records)
	}
	return
}

// Buckets returns the number of (name, type) keys held.
func (c *Cache) Buckets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets.Items())
}

// Flush drops every bucket.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets.Flush()
}
