//
//
package hub_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnonymousTalent/opsradar/internal/hub"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

// fakeTransport records frames and can be told to fail or block.
type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	reason  string
	sendErr error
	panicOn bool
	block   chan struct{}
	sent    chan struct{}

	// closeDelay stalls Close like a peer that never answers the close
	// handshake.
	closeDelay time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{}), sent: make(chan struct{}, 16)}
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	if f.panicOn {
		panic("boom")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed transport")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	select {
	case f.sent <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Close(reason string) error {
	if f.closeDelay > 0 {
		time.Sleep(f.closeDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

// hangUp simulates the remote side disconnecting.
func (f *fakeTransport) hangUp() { f.doneOnce.Do(func() { close(f.done) }) }

func (f *fakeTransport) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeTransport) Closed() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.reason
}

type recordingObserver struct {
	mu        sync.Mutex
	opened    int
	closed    map[string]string
	delivered int
	failed    int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{closed: make(map[string]string)}
}

func (o *recordingObserver) SessionOpened(hub.SessionInfo) {
	o.mu.Lock()
	o.opened++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionClosed(info hub.SessionInfo, reason string) {
	o.mu.Lock()
	o.closed[info.ID] = reason
	o.mu.Unlock()
}

func (o *recordingObserver) FrameDelivered() {
	o.mu.Lock()
	o.delivered++
	o.mu.Unlock()
}

func (o *recordingObserver) DeliveryFailed(hub.SessionInfo, error) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func testSnapshot(names ...string) telemetry.Snapshot {
	snap := telemetry.Snapshot{GeneratedAt: time.Now()}
	for _, n := range names {
		snap.Statuses = append(snap.Statuses, telemetry.ModuleStatus{Name: n, Health: telemetry.HealthOK, Log: "ok"})
		snap.Stats = append(snap.Stats, telemetry.TaskStat{Name: n, Orders: 10, SuccessRate: 95.5, Failed: 1})
	}
	return snap
}

func TestRegisterUnregister_Counts(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	sess, err := reg.Register(newFakeTransport(), hub.SessionInfo{RemoteAddr: "10.0.0.1:5000"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID())
	assert.Equal(t, 1, reg.Count())

	assert.True(t, reg.Unregister(sess.ID()))
	assert.Equal(t, 0, reg.Count())

	// Second unregister is a no-op
	assert.False(t, reg.Unregister(sess.ID()))
	assert.Equal(t, 0, reg.Count())

	select {
	case <-sess.Done():
	default:
		t.Fatal("session Done not closed after unregister")
	}
}

func TestRegister_DuplicateID(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	_, err := reg.Register(newFakeTransport(), hub.SessionInfo{ID: "a"})
	require.NoError(t, err)
	_, err = reg.Register(newFakeTransport(), hub.SessionInfo{ID: "a"})
	assert.Error(t, err)
	assert.Equal(t, 1, reg.Count())
}

func TestBroadcast_AllSessionsReceiveIdenticalFrame(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	a, b := newFakeTransport(), newFakeTransport()
	_, err := reg.Register(a, hub.SessionInfo{})
	require.NoError(t, err)
	_, err = reg.Register(b, hub.SessionInfo{})
	require.NoError(t, err)

	res, err := reg.Broadcast(context.Background(), testSnapshot("radar", "defense"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, uint64(1), res.Seq)

	require.Len(t, a.Frames(), 1)
	require.Len(t, b.Frames(), 1)
	assert.Equal(t, a.Frames()[0], b.Frames()[0])

	snap, err := telemetry.DecodeFrame(a.Frames()[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"radar", "defense"}, snap.Names())
}

func TestBroadcast_FailedDeliveryIsIsolated(t *testing.T) {
	obs := newRecordingObserver()
	reg := hub.NewRegistry(hub.WithObserver(obs))
	defer reg.Close()

	bad, good := newFakeTransport(), newFakeTransport()
	bad.sendErr = errors.New("broken pipe")

	badSess, err := reg.Register(bad, hub.SessionInfo{})
	require.NoError(t, err)
	_, err = reg.Register(good, hub.SessionInfo{})
	require.NoError(t, err)

	res, err := reg.Broadcast(context.Background(), testSnapshot("radar"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, good.Frames(), 1)
	assert.Equal(t, 1, reg.Count())

	closed, reason := bad.Closed()
	assert.True(t, closed)
	assert.Equal(t, hub.ReasonDeliveryFailed, reason)

	obs.mu.Lock()
	assert.Equal(t, hub.ReasonDeliveryFailed, obs.closed[badSess.ID()])
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, 1, obs.delivered)
	obs.mu.Unlock()
}

func TestBroadcast_PanickingTransportDoesNotEscape(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	bad, good := newFakeTransport(), newFakeTransport()
	bad.panicOn = true
	_, err := reg.Register(bad, hub.SessionInfo{})
	require.NoError(t, err)
	_, err = reg.Register(good, hub.SessionInfo{})
	require.NoError(t, err)

	var res hub.BroadcastResult
	require.NotPanics(t, func() {
		res, err = reg.Broadcast(context.Background(), testSnapshot("radar"))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, reg.Count())
	assert.Len(t, good.Frames(), 1)
}

func TestTransportDone_UnregistersAutomatically(t *testing.T) {
	obs := newRecordingObserver()
	reg := hub.NewRegistry(hub.WithObserver(obs))
	defer reg.Close()

	tr := newFakeTransport()
	sess, err := reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)

	tr.hangUp()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not unregistered after transport closed")
	}
	assert.Equal(t, 0, reg.Count())

	obs.mu.Lock()
	assert.Equal(t, hub.ReasonTransportClosed, obs.closed[sess.ID()])
	obs.mu.Unlock()
}

func TestUnregister_NoDeliveryAfterReturn(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	tr := newFakeTransport()
	sess, err := reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)

	require.True(t, reg.Unregister(sess.ID()))

	res, err := reg.Broadcast(context.Background(), testSnapshot("radar"))
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, tr.Frames())
}

func TestUnregister_WaitsForInFlightDelivery(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	tr := newFakeTransport()
	tr.block = make(chan struct{})
	sess, err := reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)

	broadcastDone := make(chan hub.BroadcastResult)
	go func() {
		res, _ := reg.Broadcast(context.Background(), testSnapshot("radar"))
		broadcastDone <- res
	}()

	// Give the broadcast time to enter Send
	time.Sleep(50 * time.Millisecond)

	unregistered := make(chan bool)
	go func() { unregistered <- reg.Unregister(sess.ID()) }()

	select {
	case <-unregistered:
		t.Fatal("unregister returned while delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(tr.block)
	assert.True(t, <-unregistered)
	res := <-broadcastDone
	assert.Equal(t, 1, res.Delivered)

	// The frame was either delivered before removal or not at all
	frames := len(tr.Frames())
	_, _ = reg.Broadcast(context.Background(), testSnapshot("radar"))
	assert.Equal(t, frames, len(tr.Frames()))
}

func TestBroadcast_SlowSessionTimesOut(t *testing.T) {
	reg := hub.NewRegistry(hub.WithDeliveryTimeout(30 * time.Millisecond))
	defer reg.Close()

	slow := newFakeTransport()
	slow.block = make(chan struct{})
	_, err := reg.Register(slow, hub.SessionInfo{})
	require.NoError(t, err)

	start := time.Now()
	res, err := reg.Broadcast(context.Background(), testSnapshot("radar"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, reg.Count())
}

func TestRegister_ReceivesLatestFrame(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	_, err := reg.Broadcast(context.Background(), testSnapshot("radar"))
	require.NoError(t, err)

	tr := newFakeTransport()
	_, err = reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)
	require.Len(t, tr.Frames(), 1)

	// The same sequence number is not sent twice
	_, err = reg.Broadcast(context.Background(), testSnapshot("radar", "core"))
	require.NoError(t, err)
	frames := tr.Frames()
	require.Len(t, frames, 2)

	last, err := telemetry.DecodeFrame(frames[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"radar", "core"}, last.Names())
}

func TestBroadcast_SequencesIncrease(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	var last uint64
	for i := 0; i < 5; i++ {
		res, err := reg.Broadcast(context.Background(), testSnapshot("radar"))
		require.NoError(t, err)
		assert.Greater(t, res.Seq, last)
		last = res.Seq
	}
}

func TestConcurrentRegisterUnregisterBroadcast(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = reg.Broadcast(context.Background(), testSnapshot("radar"))
			}
		}
	}()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sess, err := reg.Register(newFakeTransport(), hub.SessionInfo{})
				if err != nil {
					t.Error(err)
					return
				}
				reg.Unregister(sess.ID())
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Equal(t, 0, reg.Count())
}

func TestClose_RejectsRegistrationAndDrainsSessions(t *testing.T) {
	obs := newRecordingObserver()
	reg := hub.NewRegistry(hub.WithObserver(obs))

	tr := newFakeTransport()
	sess, err := reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)

	reg.Close()
	assert.Equal(t, 0, reg.Count())
	closed, reason := tr.Closed()
	assert.True(t, closed)
	assert.Equal(t, hub.ReasonShutdown, reason)

	_, err = reg.Register(newFakeTransport(), hub.SessionInfo{})
	assert.ErrorIs(t, err, hub.ErrRegistryClosed)

	_, err = reg.Broadcast(context.Background(), testSnapshot("radar"))
	assert.ErrorIs(t, err, hub.ErrRegistryClosed)

	obs.mu.Lock()
	assert.Equal(t, hub.ReasonShutdown, obs.closed[sess.ID()])
	obs.mu.Unlock()

	// Idempotent
	reg.Close()
}

func TestShutdown_ClosesSessionsConcurrently(t *testing.T) {
	reg := hub.NewRegistry()

	transports := make([]*fakeTransport, 4)
	for i := range transports {
		transports[i] = newFakeTransport()
		transports[i].closeDelay = 200 * time.Millisecond
		_, err := reg.Register(transports[i], hub.SessionInfo{})
		require.NoError(t, err)
	}

	start := time.Now()
	require.NoError(t, reg.Shutdown(context.Background()))
	assert.Less(t, time.Since(start), 600*time.Millisecond, "stalled closes must overlap")

	assert.Equal(t, 0, reg.Count())
	for _, tr := range transports {
		closed, reason := tr.Closed()
		assert.True(t, closed)
		assert.Equal(t, hub.ReasonShutdown, reason)
	}
}

func TestShutdown_BoundedByContext(t *testing.T) {
	reg := hub.NewRegistry()

	tr := newFakeTransport()
	tr.closeDelay = 2 * time.Second
	_, err := reg.Register(tr, hub.SessionInfo{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = reg.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, reg.Count(), "sessions leave the registry before their transports finish closing")

	_, err = reg.Register(newFakeTransport(), hub.SessionInfo{})
	assert.ErrorIs(t, err, hub.ErrRegistryClosed)
	assert.NoError(t, reg.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestSessions_OrderedByCreation(t *testing.T) {
	reg := hub.NewRegistry()
	defer reg.Close()

	base := time.Now()
	_, err := reg.Register(newFakeTransport(), hub.SessionInfo{ID: "second", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = reg.Register(newFakeTransport(), hub.SessionInfo{ID: "first", CreatedAt: base, Subject: "ops"})
	require.NoError(t, err)

	infos := reg.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "first", infos[0].ID)
	assert.Equal(t, "ops", infos[0].Subject)
	assert.Equal(t, "second", infos[1].ID)
}
