package queue

type config struct {
	capacity int
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*config)

// WithCapacity sets the maximum number of waiting jobs.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}
