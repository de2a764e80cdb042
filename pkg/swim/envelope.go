package swim

// Envelope is the unit of transport I/O.
//
// Envelopes are never modified once created. Routing an envelope returns a
// new envelope from the receiving node to the next hop.
type Envelope struct {
	From    Address
	To      Address
	Message Message
}

// RouteBack returns an envelope to send the reply built by newMessage back
// along route.
//
// If route is empty the reply is sent to the envelope sender, otherwise it
// is sent to the first hop in the route and newMessage is given the
// remaining hops.
func (e Envelope) RouteBack(route []Address, newMessage func(route []Address) Message) Envelope {
	if len(route) == 0 {
		return Envelope{
			From:    e.To,
			To:      e.From,
			Message: newMessage([]Address{}),
		}
	}
	return Envelope{
		From:    e.To,
		To:      route[0],
		Message: newMessage(copyRoute(route[1:])),
	}
}

// RouteForward returns an envelope to forward the message built by
// newMessage to the first hop in route. newMessage is given the next hop and
// the remaining hops.
//
// route must not be empty.
func (e Envelope) RouteForward(route []Address, newMessage func(next Address, route []Address) Message) Envelope {
	return Envelope{
		From:    e.To,
		To:      route[0],
		Message: newMessage(route[0], copyRoute(route[1:])),
	}
}
