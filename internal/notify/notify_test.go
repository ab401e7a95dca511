//
//
package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
	"github.com/AnonymousTalent/opsradar/internal/notify"
)

var testKey = strings.Repeat("01", 32)

type fakeRelay struct {
	mu     sync.Mutex
	events []nostr.Event
	fail   error
	closed bool
}

func (r *fakeRelay) Publish(_ context.Context, ev nostr.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func tagValue(tags nostr.Tags, key string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1]
		}
	}
	return ""
}

func assigned() dispatch.Dispatch {
	return dispatch.Dispatch{
		OrderID:   "O001",
		RiderID:   "R01",
		RiderName: "Swift",
		Score:     138.04,
		Assigned:  true,
		Message:   "order O001 assigned to Swift",
		At:        time.Unix(1714550400, 0),
	}
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLog(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), assigned()))
	assert.Contains(t, buf.String(), `"order":"O001"`)
	assert.Contains(t, buf.String(), "assigned to Swift (R01)")
}

func TestNostr_PublishesSignedNote(t *testing.T) {
	relays := map[string]*fakeRelay{"wss://a": {}, "wss://b": {}}
	var dials int
	n, err := notify.NewNostr(notify.NostrConfig{SecretKey: testKey, Relays: []string{"wss://a", "wss://b"}},
		notify.WithConnectFunc(func(_ context.Context, url string) (notify.Publisher, error) {
			dials++
			return relays[url], nil
		}))
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), assigned()))
	require.NoError(t, n.Notify(context.Background(), assigned()))
	assert.Equal(t, 2, dials, "connections are reused")

	for url, r := range relays {
		require.Len(t, r.events, 2, url)
		ev := r.events[0]
		assert.Equal(t, nostr.KindTextNote, ev.Kind)
		assert.Equal(t, n.PublicKey(), ev.PubKey)
		assert.Equal(t, nostr.Timestamp(1714550400), ev.CreatedAt)
		assert.Contains(t, ev.Content, "order O001 assigned to Swift")
		ok, err := ev.CheckSignature()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "138.0", tagValue(ev.Tags, "score"))
	}

	require.NoError(t, n.Close())
	assert.True(t, relays["wss://a"].closed)
}

func TestNostr_RelayFailureIsReturnedAndRedialled(t *testing.T) {
	bad := &fakeRelay{fail: errors.New("rate limited")}
	good := &fakeRelay{}
	var dials int
	n, err := notify.NewNostr(notify.NostrConfig{SecretKey: testKey, Relays: []string{"wss://bad", "wss://good"}},
		notify.WithConnectFunc(func(_ context.Context, url string) (notify.Publisher, error) {
			dials++
			if url == "wss://bad" {
				return bad, nil
			}
			return good, nil
		}))
	require.NoError(t, err)

	err = n.Notify(context.Background(), assigned())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wss://bad")
	assert.Len(t, good.events, 1)
	assert.True(t, bad.closed)

	_ = n.Notify(context.Background(), assigned())
	assert.Equal(t, 3, dials)
}

func TestNostr_SkipsUnassigned(t *testing.T) {
	r := &fakeRelay{}
	n, err := notify.NewNostr(notify.NostrConfig{SecretKey: testKey, Relays: []string{"wss://a"}},
		notify.WithConnectFunc(func(context.Context, string) (notify.Publisher, error) { return r, nil }))
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), dispatch.Dispatch{OrderID: "O1", Message: "order O1: no suitable rider"}))
	assert.Empty(t, r.events)
}

func TestNewNostr_KeyFormats(t *testing.T) {
	nsec, err := nip19.EncodePrivateKey(testKey)
	require.NoError(t, err)

	fromHex, err := notify.NewNostr(notify.NostrConfig{SecretKey: testKey, Relays: []string{"wss://a"}})
	require.NoError(t, err)
	fromNsec, err := notify.NewNostr(notify.NostrConfig{SecretKey: nsec, Relays: []string{"wss://a"}})
	require.NoError(t, err)
	assert.Equal(t, fromHex.PublicKey(), fromNsec.PublicKey())

	_, err = notify.NewNostr(notify.NostrConfig{SecretKey: "not-a-key", Relays: []string{"wss://a"}})
	assert.Error(t, err)
	_, err = notify.NewNostr(notify.NostrConfig{SecretKey: testKey})
	assert.Error(t, err)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, dispatch.Dispatch) error { return errors.New("nope") }

func TestMulti(t *testing.T) {
	var buf bytes.Buffer
	m := notify.Multi{notify.NewLog(zerolog.New(&buf)), failingNotifier{}}

	err := m.Notify(context.Background(), assigned())
	assert.EqualError(t, err, "nope")
	assert.NotEmpty(t, buf.String())

	assert.NoError(t, notify.Multi{}.Notify(context.Background(), assigned()))
}
