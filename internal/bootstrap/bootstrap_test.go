package bootstrap

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/CedrosPay/server/internal/replay"
)

func TestDecodeChannelID_Base64Variants(t *testing.T) {
	raw := []byte("channel-test-id-0001")

	for name, encoded := range map[string]string{
		"std":     base64.StdEncoding.EncodeToString(raw),
		"raw-std": base64.RawStdEncoding.EncodeToString(raw),
		"url":     base64.URLEncoding.EncodeToString(raw),
		"raw-url": base64.RawURLEncoding.EncodeToString(raw),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeChannelID(encoded)
			if err != nil {
				t.Fatalf("decodeChannelID(%q) error = %v", encoded, err)
			}
			if string(got) != string(raw) {
				t.Errorf("decodeChannelID(%q) = %q, want %q", encoded, got, raw)
			}
		})
	}
}

func TestDecodeChannelID_Base58(t *testing.T) {
	raw := []byte("channel-test-id-0002")
	encoded := base58.Encode(raw)

	got, err := decodeChannelID(encoded)
	if err != nil {
		t.Fatalf("decodeChannelID(%q) error = %v", encoded, err)
	}
	if string(got) != string(raw) {
		t.Errorf("decodeChannelID(%q) = %q, want %q", encoded, got, raw)
	}
}

func TestDecodeChannelID_Invalid(t *testing.T) {
	if _, err := decodeChannelID("\x00\x01not-valid-in-either-encoding\x02"); err == nil {
		t.Fatal("expected error decoding an unrecognizable channel id")
	}
}

type stubCache struct {
	replay.Cache
	purges int32
}

func (c *stubCache) PurgeExpired(ctx context.Context) (int, error) {
	atomic.AddInt32(&c.purges, 1)
	return 0, nil
}

func TestSweepLoop_PurgesOnEveryTick(t *testing.T) {
	cache := &stubCache{}
	stop := make(chan struct{})
	done := make(chan struct{})

	go sweepLoop(cache, 10*time.Millisecond, stop, done)

	time.Sleep(35 * time.Millisecond)
	close(stop)
	<-done

	if atomic.LoadInt32(&cache.purges) < 2 {
		t.Errorf("expected at least 2 purges, got %d", cache.purges)
	}
}

func TestSweepLoop_StopsWhenSignaled(t *testing.T) {
	cache := &stubCache{}
	stop := make(chan struct{})
	done := make(chan struct{})

	go sweepLoop(cache, time.Millisecond, stop, done)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweepLoop did not stop after stop was closed")
	}
}
