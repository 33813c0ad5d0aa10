// Package relay replicates a source collection between processes over
// Redis publish/subscribe.
//
// A Publisher connects to a local collection and publishes every change set
// as a Batch on a channel. A Subscriber applies those batches to a replica
// collection. On start the Subscriber asks for a snapshot on the channel's
// sync companion, and the Publisher answers with a Reset batch in stream
// order, so a replica converges without any shared storage.
//
//	pub := relay.NewPublisher(rc, coll, relay.Config{Channel: "trades"}, log)
//	sub := relay.NewSubscriber(rc, replica, trades.Key, relay.Config{Channel: "trades"}, log)
package relay
