package typed

// Event describes the outcome of a single guarded write.
// Expected and Incoming are the kinds compared by the guard; for rejected
// writes they match the *AssignmentError.
type Event struct {
	Object   string
	Key      string
	Declared Kind
	Expected Kind
	Incoming Kind
	Accepted bool
	// Err is the guard error for rejected writes; nil when accepted.
	Err error
}

// Observer receives an Event after every guarded write. Observers cannot
// change the outcome of the write.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Option configures New and Decorate.
type Option func(*options)

type options struct {
	name     string
	observer Observer
}

const defaultName = "TypedObject"

// WithName sets the label used in error messages and events.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithObserver registers an observer for guarded writes.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
