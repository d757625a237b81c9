package joblog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Entry) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an entry and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:      4,
		MaxBatchEntries: 1,
		MaxBatchWait:    time.Second,
	}, sink)

	hub.Emit(Entry{
		Type:    TypeDiscovery,
		Status:  StatusSuccess,
		Details: "run complete",
		TS:      time.Unix(0, 0),
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("entries forwarded: %d\n", sink.total)
	// Output:
	// entries forwarded: 1
}

// ExampleSink implements a custom Sink that collects failures.
func ExampleSink() {
	var failures []string
	capture := sinkFunc(func(_ context.Context, batch []Entry) error {
		for _, entry := range batch {
			if entry.Status == StatusError {
				failures = append(failures, entry.Details)
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:      2,
		MaxBatchEntries: 1,
		MaxBatchWait:    time.Second,
	}, capture)

	hub.Emit(Entry{
		Type:    TypeExtraction,
		Status:  StatusError,
		Details: "rate limited",
		TS:      time.Unix(0, 0),
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("failures: %s\n", strings.Join(failures, ","))
	// Output:
	// failures: rate limited
}

type sinkFunc func(context.Context, []Entry) error

func (f sinkFunc) Consume(ctx context.Context, batch []Entry) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
