// Package tube is a minimal, demand-driven reactive streams runtime: a set
// of publishers, subscribers, subscriptions, and operators implementing
// backpressure-aware asynchronous item delivery between an upstream
// producer and a downstream consumer.
//
// The protocol is the familiar one: a Subscriber receives OnSubscribe
// exactly once, then zero or more OnNext, then at most one of OnError or
// OnComplete. A Subscription lets the downstream pull demand (Request) and
// cancel. Tube is the programmable source: user code writes to a Tube
// handle and one of six backpressure strategies decides what happens when
// the downstream hasn't asked for enough.
package tube
