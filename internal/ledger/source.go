package ledger

import "io"

// sliceSource replays a fixed list of events once.
type sliceSource struct {
	events []Event
	next   int
}

// FromEvents returns a Source that yields evs in order and then io.EOF.
func FromEvents(evs ...Event) Source {
	return &sliceSource{events: evs}
}

func (s *sliceSource) Next() (Event, error) {
	if s.next >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}
