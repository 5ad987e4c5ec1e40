package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_DropsOldestOnOverflow(t *testing.T) {
	q := New(2)
	q.Record(Entry{RequestID: "1"})
	q.Record(Entry{RequestID: "2"})
	q.Record(Entry{RequestID: "3"})

	first := <-q.Drain()
	second := <-q.Drain()
	require.Equal(t, "2", first.RequestID)
	require.Equal(t, "3", second.RequestID)
}

func TestRecord_NeverBlocks(t *testing.T) {
	q := New(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Record(Entry{RequestID: "x"})
		}
		close(done)
	}()
	<-done
}
