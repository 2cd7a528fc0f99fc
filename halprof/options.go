package halprof

// DefaultQueryCapacity is the number of measurements a CommandBuffer can
// hold when WithQueryCapacity is not given.
const DefaultQueryCapacity = 256

// Option configures a Queue or a CommandBuffer.
type Option func(*config)

type config struct {
	label    string
	capacity uint32
	handle   uintptr
}

func newConfig(opts []Option) config {
	c := config{
		label:    "frameprof",
		capacity: DefaultQueryCapacity,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLabel sets the debug label prefix of the GPU objects created.
func WithLabel(label string) Option {
	return func(c *config) {
		if label != "" {
			c.label = label
		}
	}
}

// WithQueryCapacity sets how many measurements a CommandBuffer can record.
// Each measurement uses three timestamp queries.
func WithQueryCapacity(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithHandle sets the application handle reported by a CommandBuffer.
func WithHandle(h uintptr) Option {
	return func(c *config) {
		c.handle = h
	}
}
