package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := testFile + ".lock"
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Errorf("Lock file was not created")
	}

	if err := lock.release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Lock file was not removed after release")
	}
}

func TestFileLock_MutualExclusion(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "tokens.json")

	const goroutines = 8
	var (
		holders atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()

			lock, err := acquireFileLock(testFile)
			if err != nil {
				t.Errorf("Goroutine %d: Failed to acquire lock: %v", id, err)
				return
			}
			if holders.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			holders.Add(-1)

			if err := lock.release(); err != nil {
				t.Errorf("Goroutine %d: Failed to release lock: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if overlap.Load() {
		t.Errorf("Two goroutines held the lock at the same time")
	}
}

func TestFileLock_StaleLockIsBroken(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := testFile + ".lock"

	if err := os.WriteFile(lockPath, []byte("12345"), 0o600); err != nil {
		t.Fatalf("Failed to create stale lock: %v", err)
	}
	staleTime := time.Now().Add(-staleLockAge - 5*time.Second)
	if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
		t.Fatalf("Failed to set stale lock time: %v", err)
	}

	lock, err := acquireFileLock(testFile)
	if err != nil {
		t.Fatalf("Failed to acquire lock after stale lock: %v", err)
	}
	defer lock.release()

	if lock.f == nil {
		t.Errorf("Lock file handle is nil")
	}
}

func TestFileLock_Timeout(t *testing.T) {
	origRetries, origDelay := lockMaxRetries, lockRetryDelay
	lockMaxRetries, lockRetryDelay = 5, 10*time.Millisecond
	defer func() {
		lockMaxRetries, lockRetryDelay = origRetries, origDelay
	}()

	testFile := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(testFile+".lock", nil, 0o600); err != nil {
		t.Fatalf("Failed to create fresh lock: %v", err)
	}

	start := time.Now()
	_, err := acquireFileLock(testFile)
	if err == nil {
		t.Fatalf("Expected timeout error, but lock was acquired")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Gave up after %v, expected the full retry budget", elapsed)
	}
}

func BenchmarkFileLock_AcquireRelease(b *testing.B) {
	testFile := filepath.Join(b.TempDir(), "tokens.json")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lock, err := acquireFileLock(testFile)
		if err != nil {
			b.Fatalf("Failed to acquire lock: %v", err)
		}
		if err := lock.release(); err != nil {
			b.Fatalf("Failed to release lock: %v", err)
		}
	}
}
