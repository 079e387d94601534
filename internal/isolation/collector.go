package isolation

import "sync"

const defaultLogBuffer = 256

// LogCollector gathers lines from many producers through a channel drained
// by a single consumer goroutine.
type LogCollector struct {
	ch   chan string
	done chan struct{}
	stop chan struct{}

	mu    sync.Mutex
	lines []string
	once  sync.Once
}

// NewLogCollector starts the consumer.
func NewLogCollector(buffer int) *LogCollector {
	if buffer <= 0 {
		buffer = defaultLogBuffer
	}
	c := &LogCollector{
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go c.consume()
	return c
}

func (c *LogCollector) consume() {
	defer close(c.done)
	for {
		select {
		case line := <-c.ch:
			c.append(line)
		case <-c.stop:
			// Take what is already queued, then quit.
			for {
				select {
				case line := <-c.ch:
					c.append(line)
				default:
					return
				}
			}
		}
	}
}

func (c *LogCollector) append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Logf queues line. After Close, or when the consumer has stopped, the
// line is dropped instead of blocking the producer.
func (c *LogCollector) Logf(line string) {
	select {
	case <-c.stop:
		return
	default:
	}
	select {
	case c.ch <- line:
	case <-c.stop:
	}
}

// Close stops the consumer and returns the lines captured so far.
func (c *LogCollector) Close() []string {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}
