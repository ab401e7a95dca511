// Package dispatch simulates order dispatching for the poll map view.
//
// A Simulator holds the pending orders and the online riders. Every interval
// it takes the head order, picks the best-scoring rider, notifies and records
// the decision, and removes the order. When all orders are dispatched the
// seed is reloaded and the cycle restarts.
//
// Score = (100 - distance) + rating*10, distance being Euclidean on the
// 0-100 map grid.
package dispatch
