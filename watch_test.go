package zds

import (
	"context"
	"testing"
	"time"
)

func TestWatchRefreshesOnWriterFlush(t *testing.T) {
	dir := t.TempDir()
	layout := NewLayout(dir)
	if err := layout.InitRoot(); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}

	writer, err := openCollection(layout, "widgets", CollectionOptions{})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()
	if err := writer.Put("w1", map[string]any{"qty": float64(1)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reader, err := openCollection(layout, "widgets", CollectionOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reader.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer reader.StopWatch()

	if err := writer.Put("w2", map[string]any{"qty": float64(2)}); err != nil {
		t.Fatalf("Put w2: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush w2: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := reader.Get("w2"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("reader never observed w2 after writer flush within the deadline")
}

func TestWatchDoubleStartFails(t *testing.T) {
	dir := t.TempDir()
	layout := NewLayout(dir)
	if err := layout.InitRoot(); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	c, err := openCollection(layout, "widgets", CollectionOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Watch(ctx); err != nil {
		t.Fatalf("first Watch: %v", err)
	}
	defer c.StopWatch()
	if err := c.Watch(ctx); Categorize(err) != CategoryInvalidState {
		t.Fatalf("expected InvalidState on a second concurrent Watch, got %v", err)
	}
}
