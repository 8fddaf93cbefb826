package relay

import (
	"sync"
	"testing"
)

func TestChannelConfig_Lifecycle(t *testing.T) {
	c := NewChannelConfig(0)
	if _, set := c.Get(); set {
		t.Fatalf("zero initial should leave the channel unset")
	}

	c.Set(-100123)
	if id, set := c.Get(); !set || id != -100123 {
		t.Fatalf("Get = %d, %v", id, set)
	}

	c.Clear()
	if _, set := c.Get(); set {
		t.Fatalf("Clear did not unset the channel")
	}
}

func TestChannelConfig_SeededInitial(t *testing.T) {
	c := NewChannelConfig(-42)
	if id, set := c.Get(); !set || id != -42 {
		t.Fatalf("Get = %d, %v", id, set)
	}
}

func TestChannelConfig_Concurrent(t *testing.T) {
	c := NewChannelConfig(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set(int64(i))
		}(i)
		go func() {
			defer wg.Done()
			c.Get()
		}()
	}
	wg.Wait()
	if _, set := c.Get(); !set {
		t.Fatalf("expected a set channel after concurrent writes")
	}
}
