package bus

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PreservesOrder(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 1000; i++ {
		q.Push(i)
	}
	if q.Len() != 1000 {
		t.Fatalf("expected len=1000, got %d", q.Len())
	}

	got := q.Drain()
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d: expected %d, got %d", i, i, v)
		}
	}
	if q.Drain() != nil {
		t.Fatal("second drain should be empty")
	}
}

func TestQueue_ReadyAfterPush(t *testing.T) {
	q := NewQueue[string]()
	select {
	case <-q.Ready():
		t.Fatal("empty queue should not be ready")
	default:
	}

	q.Push("a")
	q.Push("b") // coalesced wake-up

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected a wake-up")
	}
	if got := q.Drain(); len(got) != 2 {
		t.Fatalf("expected 2 items, got %v", got)
	}
}

func TestQueue_ConcurrentProducersNeverBlock(t *testing.T) {
	q := NewQueue[int]()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	got := q.Drain()
	if len(got) != producers*perProducer {
		t.Fatalf("expected %d items, got %d", producers*perProducer, len(got))
	}

	// each producer's items stay in its own push order
	last := make(map[int]int)
	for _, v := range got {
		p := v / perProducer
		if prev, ok := last[p]; ok && v <= prev {
			t.Fatalf("producer %d out of order: %d after %d", p, v, prev)
		}
		last[p] = v
	}
}
