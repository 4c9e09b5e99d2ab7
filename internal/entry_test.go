package internal

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/tasklet/internal/sse"
	"github.com/starford/tasklet/internal/syncengine"
	"github.com/starford/tasklet/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) collect(ch chan []byte) {
	for msg := range ch {
		r.mu.Lock()
		r.msgs = append(r.msgs, string(msg))
		r.mu.Unlock()
	}
}

func (r *recorder) has(event, fragment string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.HasPrefix(m, "event: "+event+"\n") && strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

func TestWireEventsBridgesEngineAndStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	h := testutil.FileHandle(t)
	app, err := Open(ctx, WithConfig(cfg), WithLogOutput(&bytes.Buffer{}), WithPicker(syncengine.StaticPicker(h)))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	broker := sse.NewBroker(20 * time.Millisecond)
	defer broker.Close()
	off := wireEvents(app, broker)
	defer off()

	rec := &recorder{}
	ch := broker.Subscribe()
	go rec.collect(ch)
	defer broker.Unsubscribe(ch)

	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return rec.has(sse.TypeSyncStatus, `"status":"pending"`)
	}, "pending status never reached subscriber")

	if _, err := app.Store.RequestAccess(ctx, nil); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return rec.has(sse.TypeSyncStatus, `"status":"ready"`)
	}, "ready status never reached subscriber")

	if _, err := app.Store.AddItem("water the plants", false); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return rec.has(sse.TypeDocumentUpdated, `"items":1`)
	}, "document update never reached subscriber")
}
