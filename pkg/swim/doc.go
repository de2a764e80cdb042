// Package swim implements a SWIM-style group membership protocol.
//
// Each node periodically probes a randomly chosen member with a Ping. If no
// Pong arrives within the ping timeout, the node asks other members to probe
// the target on its behalf (an indirect probe) so a lossy link between two
// nodes isn't mistaken for a failed node.
//
// Membership state is disseminated by piggybacking a small sample of the
// local membership table on every Ping and Pong. Each member has a logical
// clock, and a member is considered part of the group if its clock has
// advanced within the failure timeout. Failed members are never explicitly
// removed, they simply stop appearing in the group.
package swim
