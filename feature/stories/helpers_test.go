package stories

import (
	"context"
	"errors"
	"sync"
	"testing"

	"story-pipeline/core/docstore"
	"story-pipeline/core/push"

	"github.com/stretchr/testify/require"
)

// recordingGateway keeps every message it is asked to send.
type recordingGateway struct {
	mu   sync.Mutex
	sent []push.Message
	errs []error
	fail bool
}

func (g *recordingGateway) Send(ctx context.Context, msg push.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	g.errs = append(g.errs, ctx.Err())
	if g.fail {
		return "", errors.New("gateway unavailable")
	}
	return "msg-1", nil
}

func (g *recordingGateway) messages() []push.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]push.Message(nil), g.sent...)
}

type fixture struct {
	store   *docstore.MemoryStore
	gateway *recordingGateway
	service *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := docstore.NewMemory(docstore.WithMaxAttempts(100))
	gw := &recordingGateway{}
	svc := NewService(cfg, Deps{
		Store:   store,
		Gateway: gw,
		Bucket:  "media",
		Topic:   "new_stories",
	})
	return &fixture{store: store, gateway: gw, service: svc}
}

func (f *fixture) record(t *testing.T, id string) *docstore.Snapshot {
	t.Helper()
	snap, err := f.store.Get(context.Background(), docstore.Doc("stories", id))
	require.NoError(t, err)
	return snap
}
