package entity

// Snapshot is everything a single transaction may read and write. Storage hands a
// fresh snapshot to the transaction body and commits it only if the body succeeds.
type Snapshot struct {
	Contract *Contract
	Game     *Game
	Ledger   *Ledger

	events []Event
}

func (that *Snapshot) Emit(event Event) {
	that.events = append(that.events, event)
}

// Sequence numbers the pending events using the contract's event counter.
// Storage calls it once, right before writing.
func (that *Snapshot) Sequence() []Event {
	for i := range that.events {
		that.Contract.EventCount++
		that.events[i].Seq = that.Contract.EventCount
	}
	return that.events
}

func (that *Snapshot) Events() []Event {
	return that.events
}
