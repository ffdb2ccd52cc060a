/*
Package events provides an in-memory, topic-based pub/sub broker used to
back the facade's subscribe_topic and subscribe_all operations.

Publishers call Publish with an Event carrying a topic string; the
broker's broadcast loop fans it out to every subscriber whose glob
pattern (via Subscribe) matches that topic. "*" subscribes to everything.
Delivery is best-effort and non-blocking: a subscriber with a full buffer
skips the event rather than stalling the publisher.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe("oplog.mydb-*")
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		...
	}
*/
package events
