package tilecache

import (
	"sync"
	"testing"
	"time"

	"github.com/contile/contile/internal/audience"
)

func testKey() audience.Key {
	return audience.New("US", "CA", audience.FormFactorDesktop, audience.OSFamilyMacOS)
}

func TestInsertThenGet(t *testing.T) {
	c := New()
	k := testKey()
	c.Insert(k, Entry{Payload: []byte(`{"tiles":[]}`), CreatedAt: time.Now(), TTL: time.Minute})

	e, ok := c.Get(k)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if string(e.Payload) != `{"tiles":[]}` {
		t.Errorf("payload = %s", e.Payload)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New()
	if _, ok := c.Get(testKey()); ok {
		t.Error("expected miss on empty cache")
	}
}

func TestExpiredEntryStillReadable(t *testing.T) {
	c := New()
	k := testKey()
	old := Entry{Payload: []byte("x"), CreatedAt: time.Now().Add(-time.Hour), TTL: time.Minute}
	c.Insert(k, old)

	e, ok := c.Get(k)
	if !ok {
		t.Fatal("expired entry should remain readable")
	}
	if !e.IsExpired(time.Now(), 0) {
		t.Error("entry should report as expired")
	}
}

func TestKeysSnapshotIndependent(t *testing.T) {
	c := New()
	k1 := audience.New("US", "", audience.FormFactorDesktop, audience.OSFamilyMacOS)
	k2 := audience.New("DE", "", audience.FormFactorPhone, audience.OSFamilyAndroid)
	c.Insert(k1, Entry{})
	c.Insert(k2, Entry{})

	keys := c.Keys()
	c.Insert(audience.New("FR", "", audience.FormFactorTablet, audience.OSFamilyIOS), Entry{})

	if len(keys) != 2 {
		t.Errorf("snapshot should be unaffected by later inserts, got %d keys", len(keys))
	}
}

func TestConcurrentReadersDontRace(t *testing.T) {
	c := New()
	k := testKey()
	c.Insert(k, Entry{Payload: []byte("x"), CreatedAt: time.Now(), TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(k)
		}()
	}
	wg.Wait()
}
