package dataset

// EventKind identifies which part of a dataset changed.
type EventKind int

const (
	EventRolesChanged EventKind = iota
	EventMaskChanged
	EventCellChanged
	EventHeaderChanged
)

func (k EventKind) String() string {
	switch k {
	case EventRolesChanged:
		return "roles_changed"
	case EventMaskChanged:
		return "mask_changed"
	case EventCellChanged:
		return "cell_changed"
	case EventHeaderChanged:
		return "header_changed"
	}
	return "unknown"
}

// Event describes a completed mutation. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Role   Role   // EventRolesChanged
	Row    int    // EventCellChanged, EventMaskChanged; -1 when several rows changed
	Column string // EventRolesChanged, EventCellChanged, EventHeaderChanged (new name)

	// Selected is the new state of Row, or of every row after SelectAll and
	// UnselectAll. It is false after SetMask.
	Selected bool

	OldColumn string  // EventHeaderChanged
	OldValue  float64 // EventCellChanged
	NewValue  float64 // EventCellChanged
}

type listener struct {
	id int
	fn func(Event)
}

// Subscribe registers fn to be called after every mutation of d.
// Listeners run synchronously, after the mutation is applied and the dataset
// lock is released, before the mutating call returns. The returned function
// removes the listener.
func (d *Dataset) Subscribe(fn func(Event)) (unsubscribe func()) {
	d.mu.Lock()
	d.nextListener++
	id := d.nextListener
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// apply runs mutate with d.mu held and notifies listeners with the event it
// returns, after the lock is released. A nil event means nothing changed.
// The lock is released even if mutate panics.
func (d *Dataset) apply(mutate func() (*Event, error)) error {
	ev, err := d.locked(mutate)
	if err != nil || ev == nil {
		return err
	}
	d.notify(*ev)
	return nil
}

func (d *Dataset) locked(fn func() (*Event, error)) (*Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// notify must be called without d.mu held.
func (d *Dataset) notify(ev Event) {
	d.mu.Lock()
	ls := d.listeners
	d.mu.Unlock()

	for _, l := range ls {
		l.fn(ev)
	}
}
