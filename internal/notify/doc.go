// Package notify announces dispatch decisions.
//
// Log writes the decision to the structured log. Nostr signs a kind-1 text
// note with the configured key and publishes it to every configured relay.
// Multi fans a decision out to several notifiers.
package notify
