package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mcpruntime/core/pkg/logger"
)

// Config configures a Sink's channel capacity and log rotation policy.
type Config struct {
	// ChannelCapacity bounds the MPSC queue between producers and the
	// consumer goroutine.
	ChannelCapacity int

	// Path is the audit log file path. Empty disables file output;
	// records are then written to the package logger instead.
	Path string

	// MaxSizeMB and MaxAgeDays drive lumberjack's size/age rotation
	// policy: rotate by size or age, with the oldest backups deleted
	// first once MaxBackups is exceeded.
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// DefaultConfig returns the default audit sink configuration.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity: 4096,
		MaxSizeMB:       100,
		MaxAgeDays:      30,
		MaxBackups:      10,
	}
}

// Sink is a bounded MPSC channel plus dedicated consumer: producers
// enqueue without blocking; if the channel is full, the enqueue fails, a
// drop counter increments, and the producer is never blocked or
// deadlocked waiting on the consumer.
type Sink struct {
	records chan *AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup

	seq     atomic.Uint64
	dropped atomic.Uint64

	writer *lumberjack.Logger
	recent *ring
}

// NewSink starts a Sink's consumer goroutine and returns the Sink. Call
// Close to drain and stop it.
func NewSink(cfg Config) *Sink {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 4096
	}

	s := &Sink{
		records: make(chan *AuditEvent, cfg.ChannelCapacity),
		done:    make(chan struct{}),
		recent:  newRing(defaultQueryBufferCapacity),
	}

	if cfg.Path != "" {
		s.writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}
	}

	s.wg.Add(1)
	go s.consume()
	return s
}

// Record assigns the event the next monotonic sequence number and
// attempts to enqueue it. It never blocks: if the channel is full, the
// record is dropped and the drop counter increments, per the sink's
// best-effort-under-overload contract.
func (s *Sink) Record(_ context.Context, event *AuditEvent) {
	event.Metadata.Seq = s.seq.Add(1)
	select {
	case s.records <- event:
	default:
		s.dropped.Add(1)
		logger.Warnf("audit sink saturated, dropping record seq=%d type=%s", event.Metadata.Seq, event.Type)
	}
}

// Dropped returns the number of records dropped due to a saturated
// channel since the sink was created.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Sink) consume() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.records:
			s.write(event)
		case <-s.done:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case event := <-s.records:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(event *AuditEvent) {
	s.recent.add(event)

	data, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("failed to marshal audit event: %v", err)
		return
	}
	if s.writer != nil {
		data = append(data, '\n')
		if _, err := s.writer.Write(data); err != nil {
			logger.Errorf("failed to write audit event: %v", err)
		}
		return
	}
	logger.Info(string(data))
}

// Close stops the consumer after draining any buffered records, then
// closes the rotating writer if one is configured.
func (s *Sink) Close() error {
	close(s.done)
	s.wg.Wait()
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
