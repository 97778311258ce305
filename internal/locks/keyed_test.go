package locks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("poll-1")
			counter++
			km.Unlock("poll-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, km.Len(), "idle keys are released")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("poll-1")

	done := make(chan struct{})
	go func() {
		km.Lock("poll-2")
		km.Unlock("poll-2")
		close(done)
	}()

	// A different key must not block behind poll-1.
	<-done
	km.Unlock("poll-1")

	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_UnlockUnknownKeyPanics(t *testing.T) {
	km := NewKeyedMutex()
	assert.Panics(t, func() { km.Unlock("never-locked") })
}
