package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSink_QueryFiltersByPrincipalAndType(t *testing.T) {
	t.Parallel()
	s := NewSink(Config{ChannelCapacity: 16})
	defer s.Close()

	record := func(eventType, principal string) {
		e := NewAuditEvent(eventType, EventSource{Type: SourceTypeInproc, Value: principal}, OutcomeSuccess,
			map[string]string{SubjectKeyPrincipal: principal}, "test")
		s.Record(context.Background(), e)
	}
	record(EventTypeToolExecute, "alice")
	record(EventTypeToolExecute, "bob")
	record(EventTypeRoleAssign, "alice")

	waitForDrain(t, s, 3)

	byPrincipal := s.Query(QueryFilter{Principal: "alice"})
	assert.Len(t, byPrincipal, 2)

	byType := s.Query(QueryFilter{Type: EventTypeToolExecute})
	assert.Len(t, byType, 2)

	both := s.Query(QueryFilter{Principal: "alice", Type: EventTypeRoleAssign})
	assert.Len(t, both, 1)
}

func TestSink_QueryReturnsNewestFirstAndRespectsLimit(t *testing.T) {
	t.Parallel()
	s := NewSink(Config{ChannelCapacity: 16})
	defer s.Close()

	for i := 0; i < 5; i++ {
		s.Record(context.Background(), NewAuditEvent(EventTypeToolExecute, EventSource{}, OutcomeSuccess,
			map[string]string{SubjectKeyPrincipal: "alice"}, "test").WithMetadata("i", i))
	}
	waitForDrain(t, s, 5)

	results := s.Query(QueryFilter{Limit: 2})
	assert.Len(t, results, 2)
	assert.Equal(t, 4, results[0].Metadata.Extra["i"])
	assert.Equal(t, 3, results[1].Metadata.Extra["i"])
}

func TestSink_QueryEmptyBeforeAnyRecord(t *testing.T) {
	t.Parallel()
	s := NewSink(Config{ChannelCapacity: 16})
	defer s.Close()

	assert.Empty(t, s.Query(QueryFilter{}))
}

// waitForDrain blocks until the sink's consumer goroutine has processed
// at least n records, so Query observes a deterministic ring contents
// instead of racing the async consumer.
func waitForDrain(t *testing.T, s *Sink, n int) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if len(s.recent.snapshot()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("sink did not drain %d records in time", n)
}
