/*
Package api is the thin facade adapter between the core (crypto, storage,
typed stores, op log, resilience, discovery, sync engine) and the two
external collaborators the core does not implement itself: the
query/mutation transport a caller embeds this node behind, and the peer
wire protocol nodes use to gossip with each other.

Facade exposes the inbound surface (submit, get_<variant>, filter_<variant>,
subscribe_topic/subscribe_all, dial_peer). Server and Client are the
inbound and outbound halves of the peer wire protocol: length-prefixed
canonical JSON envelopes over a plain net.Conn. Client satisfies
pkg/syncengine.PeerClient so the sync engine never needs to know the wire
format it rides on.
*/
package api
