package ledger

// EventLog is the append-only history of every event seen during a run.
//
// Every logged event is indexed by its transaction id, whatever its kind.
// When an id repeats, the first logged event wins, so a dispute that arrives
// before the deposit it names claims the id and later references find the
// amount-less dispute instead.
type EventLog struct {
	events    []*Event
	byTx      map[txKey]*Event
	perClient bool
}

// txKey identifies an indexed event. client is zero unless the log is
// scoped per client.
type txKey struct {
	client ClientID
	tx     TxID
}

// NewEventLog returns an empty log with one id space for all clients.
func NewEventLog() *EventLog {
	return &EventLog{byTx: make(map[txKey]*Event)}
}

// NewClientEventLog returns an empty log in which every client has its own
// id space, as if each client's events were logged separately.
func NewClientEventLog() *EventLog {
	return &EventLog{byTx: make(map[txKey]*Event), perClient: true}
}

// Append logs ev and returns the logged copy. Only the copy's State may be
// changed afterwards.
func (l *EventLog) Append(ev Event) *Event {
	logged := &ev
	l.events = append(l.events, logged)
	key := l.key(ev.Client, ev.Tx)
	if _, exists := l.byTx[key]; !exists {
		l.byTx[key] = logged
	}
	return logged
}

// Find returns the first event logged under tx. client only narrows the
// lookup in a per-client log.
func (l *EventLog) Find(client ClientID, tx TxID) (*Event, bool) {
	ev, ok := l.byTx[l.key(client, tx)]
	return ev, ok
}

func (l *EventLog) key(client ClientID, tx TxID) txKey {
	if !l.perClient {
		client = 0
	}
	return txKey{client: client, tx: tx}
}

// Len returns the number of logged events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// Events returns copies of the logged events in arrival order.
func (l *EventLog) Events() []Event {
	out := make([]Event, len(l.events))
	for i, ev := range l.events {
		out[i] = *ev
	}
	return out
}
