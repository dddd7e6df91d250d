package recurring

// Trigger wakes a loop up. Fires are coalesced until the loop receives.
//
// Pass C() to loop.WakeOn.
type Trigger struct {
	ch chan struct{}
}

func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire requests the next run as soon as possible. It never blocks.
func (t *Trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
