package sxlock

import (
	"sync"
	"testing"
)

func TestTASLock(t *testing.T) {
	var m TASLock
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	var counter int64
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestTASLock_PreservesUpperBits(t *testing.T) {
	var m TASLock
	m.word.Store(0xF0)
	if !m.TryLock() {
		t.Fatal("TryLock failed with lock bit clear")
	}
	if got := m.word.Load(); got != 0xF1 {
		t.Fatalf("word after TryLock = %#x, want 0xf1", got)
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on held lock")
	}
	m.Unlock()
	if got := m.word.Load(); got != 0xF0 {
		t.Fatalf("word after Unlock = %#x, want 0xf0", got)
	}
	if m.Locked() {
		t.Fatal("Locked after Unlock")
	}
}

func TestTASLock_UnlockUnlocked(t *testing.T) {
	var m TASLock
	defer func() {
		if recover() == nil {
			t.Fatal("Unlock of unlocked TASLock did not panic")
		}
	}()
	m.Unlock()
}
