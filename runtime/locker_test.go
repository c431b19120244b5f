package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLocker_Serialises_Same_Key(t *testing.T) {
	req := require.New(t)
	locker := NewKeyedLocker()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("alice")
			defer unlock()
			// Read-modify-write without any other protection
			current := counter
			time.Sleep(time.Microsecond)
			counter = current + 1
		}()
	}
	wg.Wait()

	req.Equal(50, counter)
	req.Zero(locker.Len())
}

func TestKeyedLocker_Independent_Keys(t *testing.T) {
	locker := NewKeyedLocker()
	unlockAlice := locker.Lock("alice")
	defer unlockAlice()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock("bob")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "bob should not wait for alice")
	}
}

func TestKeyedLocker_Opposite_Order_No_Deadlock(t *testing.T) {
	locker := NewKeyedLocker()
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locker.Lock("alice", "bob")()
			}()
			go func() {
				defer wg.Done()
				locker.Lock("bob", "alice")()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.Fail(t, "opposite lock orders deadlocked")
	}
}

func TestKeyedLocker_Duplicate_Keys(t *testing.T) {
	locker := NewKeyedLocker()
	unlock := locker.Lock("alice", "alice")
	unlock()
	require.Zero(t, locker.Len())
}
