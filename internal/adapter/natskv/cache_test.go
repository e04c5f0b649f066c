package natskv_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/Strob0t/sddflow/internal/adapter/natskv"
	"github.com/Strob0t/sddflow/internal/port/cache"
)

var testTime = time.Unix(1700000000, 0)

var validKVKey = regexp.MustCompile(`^[-/_=\.a-zA-Z0-9]+$`)

func TestKeyIsValidAndStable(t *testing.T) {
	raw := cache.FileKey("/srv/features/checkout/review/review-l1-ba.json", 128, testTime)
	k := natskv.Key(raw)
	if !validKVKey.MatchString(k) {
		t.Fatalf("key %q is not a valid KV key", k)
	}
	if natskv.Key(raw) != k {
		t.Fatal("key must be deterministic")
	}
	other := cache.FileKey("/srv/features/checkout/review/review-l1-ba.json", 129, testTime)
	if natskv.Key(other) == k {
		t.Fatal("different file sizes must map to different keys")
	}
}
