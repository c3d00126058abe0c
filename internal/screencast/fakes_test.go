package screencast

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/portalcast/internal/capture"
	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/selector"
)

var dualHead = []display.Output{
	{Name: "DP-1", ID: 1, Position: image.Pt(0, 0), Width: 1920, Height: 1080},
	{Name: "DP-2", ID: 2, Position: image.Pt(1920, 0), Width: 2560, Height: 1440},
}

type fakeEnumerator struct {
	outputs []display.Output
	err     error
}

func (e *fakeEnumerator) ListOutputs(ctx context.Context) ([]display.Output, error) {
	return e.outputs, e.err
}

type selectFunc func(ctx context.Context, kind selector.Kind) (*selector.Region, error)

func (f selectFunc) SelectRegion(ctx context.Context, kind selector.Kind) (*selector.Region, error) {
	return f(ctx, kind)
}

func pick(x, y int) selectFunc {
	return func(context.Context, selector.Kind) (*selector.Region, error) {
		return &selector.Region{Position: image.Pt(x, y), Width: 10, Height: 10}, nil
	}
}

type fakeWorker struct {
	id    uint32
	stops atomic.Int32
}

func (w *fakeWorker) NodeID() uint32 { return w.id }

func (w *fakeWorker) Stop() error {
	w.stops.Add(1)
	return nil
}

type fakeWorkers struct {
	mu      sync.Mutex
	nextID  uint32
	err     error
	started []*fakeWorker
	params  []capture.Params
}

func (f *fakeWorkers) Start(ctx context.Context, p capture.Params) (cast.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	w := &fakeWorker{id: 100 + f.nextID}
	f.started = append(f.started, w)
	f.params = append(f.params, p)
	return w, nil
}

func (f *fakeWorkers) all() []*fakeWorker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeWorker(nil), f.started...)
}

type fakePublisher struct {
	mu          sync.Mutex
	requests    map[string]context.CancelFunc
	sessions    map[string]func()
	unpublished []string
	failRequest bool
	failSession bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		requests: make(map[string]context.CancelFunc),
		sessions: make(map[string]func()),
	}
}

func (p *fakePublisher) PublishRequest(path string, cancel context.CancelFunc) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRequest {
		return nil, errors.New("bus gone")
	}
	p.requests[path] = cancel
	return func() {
		p.mu.Lock()
		delete(p.requests, path)
		p.mu.Unlock()
	}, nil
}

func (p *fakePublisher) PublishSession(path string, onClose func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSession {
		return errors.New("object path in use")
	}
	p.sessions[path] = onClose
	return nil
}

func (p *fakePublisher) UnpublishSession(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, path)
	p.unpublished = append(p.unpublished, path)
}

// closeRequest simulates a client calling Request.Close.
func (p *fakePublisher) closeRequest(path string) bool {
	p.mu.Lock()
	cancel, ok := p.requests[path]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// closeSession simulates a client calling Session.Close.
func (p *fakePublisher) closeSession(path string) bool {
	p.mu.Lock()
	onClose, ok := p.sessions[path]
	p.mu.Unlock()
	if ok {
		onClose()
	}
	return ok
}

func (p *fakePublisher) hasSession(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[path]
	return ok
}
