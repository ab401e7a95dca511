//
//
package notify

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/rs/zerolog"

	"github.com/AnonymousTalent/opsradar/internal/dispatch"
)

// Publisher is the subset of a relay connection used to publish notes.
type Publisher interface {
	Publish(ctx context.Context, ev nostr.Event) error
	Close() error
}

// ConnectFunc opens a relay connection.
type ConnectFunc func(ctx context.Context, url string) (Publisher, error)

func connectRelay(ctx context.Context, url string) (Publisher, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return relay, nil
}

// NostrConfig configures the nostr notifier.
type NostrConfig struct {
	SecretKey string // hex or nsec
	Relays    []string
	Timeout   time.Duration
}

// Nostr publishes dispatch announcements as signed text notes.
type Nostr struct {
	skHex   string
	pubHex  string
	relays  []string
	timeout time.Duration
	connect ConnectFunc
	log     zerolog.Logger

	mu    sync.Mutex
	conns map[string]Publisher
}

// NostrOption configures a Nostr notifier.
type NostrOption func(*Nostr)

// WithConnectFunc replaces the relay dialer.
func WithConnectFunc(fn ConnectFunc) NostrOption { return func(n *Nostr) { n.connect = fn } }

// WithNostrLogger sets the notifier logger.
func WithNostrLogger(l zerolog.Logger) NostrOption {
	return func(n *Nostr) { n.log = l.With().Str("component", "notify.nostr").Logger() }
}

// NewNostr derives the public key and prepares a notifier. Relays are
// connected lazily on first use.
func NewNostr(cfg NostrConfig, opts ...NostrOption) (*Nostr, error) {
	if len(cfg.Relays) == 0 {
		return nil, errors.New("notify: at least one relay is required")
	}
	skHex, err := decodeSecretKey(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	pubHex, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return nil, fmt.Errorf("notify: derive public key: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	n := &Nostr{
		skHex:   skHex,
		pubHex:  pubHex,
		relays:  append([]string(nil), cfg.Relays...),
		timeout: cfg.Timeout,
		connect: connectRelay,
		log:     zerolog.Nop(),
		conns:   make(map[string]Publisher),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// decodeSecretKey accepts a 64 character hex key or an nsec.
func decodeSecretKey(secretKey string) (string, error) {
	if len(secretKey) == 64 {
		if _, err := hex.DecodeString(secretKey); err != nil {
			return "", errors.New("notify: secret key is not valid hex")
		}
		return secretKey, nil
	}

	prefix, sk, err := nip19.Decode(secretKey)
	if err != nil {
		return "", fmt.Errorf("notify: secret key is invalid: %w", err)
	}
	if prefix != "nsec" {
		return "", errors.New("notify: secret key is not an nsec or hex key")
	}
	switch v := sk.(type) {
	case string:
		return v, nil
	case []byte:
		return hex.EncodeToString(v), nil
	}
	return "", errors.New("notify: unexpected nsec payload type")
}

// PublicKey returns the hex public key notes are signed with.
func (n *Nostr) PublicKey() string { return n.pubHex }

// Event builds the signed note for d.
func (n *Nostr) Event(d dispatch.Dispatch) (nostr.Event, error) {
	ev := nostr.Event{
		PubKey:    n.pubHex,
		CreatedAt: nostr.Timestamp(d.At.Unix()),
		Kind:      nostr.KindTextNote,
		Tags: nostr.Tags{
			{"t", "dispatch"},
			{"order", d.OrderID},
			{"rider", d.RiderID},
			{"score", strconv.FormatFloat(d.Score, 'f', 1, 64)},
		},
		Content: Message(d),
	}
	if d.At.IsZero() {
		ev.CreatedAt = nostr.Now()
	}
	if err := ev.Sign(n.skHex); err != nil {
		return nostr.Event{}, fmt.Errorf("notify: sign event: %w", err)
	}
	return ev, nil
}

// Notify implements dispatch.Notifier. Every relay is tried; failures are
// joined. A relay that fails is reconnected on the next call.
func (n *Nostr) Notify(ctx context.Context, d dispatch.Dispatch) error {
	if !d.Assigned {
		return nil
	}
	ev, err := n.Event(d)
	if err != nil {
		return err
	}

	var errs []error
	for _, url := range n.relays {
		if err := n.publish(ctx, url, ev); err != nil {
			n.log.Warn().Err(err).Str("relay", url).Msg("publish failed")
			errs = append(errs, fmt.Errorf("relay %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Nostr) publish(ctx context.Context, url string, ev nostr.Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()

	conn, ok := n.conns[url]
	if !ok {
		c, err := n.connect(ctx, url)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		conn = c
		n.conns[url] = conn
	}

	if err := conn.Publish(ctx, ev); err != nil {
		_ = conn.Close()
		delete(n.conns, url)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close closes all open relay connections.
func (n *Nostr) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for url, c := range n.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(n.conns, url)
	}
	return errors.Join(errs...)
}
