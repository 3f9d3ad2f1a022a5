package metrics

import "typedobject/pkg/typed"

// Fanout returns an observer forwarding every event to each non-nil observer
// in order. It returns nil when none remain.
func Fanout(observers ...typed.Observer) typed.Observer {
	var live []typed.Observer
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return fanout(live)
}

type fanout []typed.Observer

func (f fanout) Observe(e typed.Event) {
	for _, o := range f {
		o.Observe(e)
	}
}
