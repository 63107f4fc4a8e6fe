package chain

import "github.com/ethereum/go-ethereum/common"

// Event is a log entry emitted by a contract.
type Event struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Data    any            `json:"data"`
}

// FindEvent returns the last event with the given name, if any.
func FindEvent(events []Event, name string) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name == name {
			return events[i], true
		}
	}
	return Event{}, false
}
