package cache

import (
	"errors"
	"testing"
	"time"
)

func TestFetchComputesOnceWithinTTL(t *testing.T) {
	c := New(time.Minute)

	computes := 0
	compute := func() (any, error) {
		computes++
		return "expensive", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Fetch("k", compute)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if v != "expensive" {
			t.Fatalf("fetch %d: got %v", i, v)
		}
	}

	if computes != 1 {
		t.Fatalf("computed %d times, want 1", computes)
	}
}

func TestFetchErrorDoesNotPoison(t *testing.T) {
	c := New(time.Minute)

	boom := errors.New("db down")

	if _, err := c.Fetch("k", func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}

	v, err := c.Fetch("k", func() (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("fetch after error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestGetExpiresEntries(t *testing.T) {
	c := New(15 * time.Millisecond)

	c.Set("k", "v")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry should miss")
	}
}
