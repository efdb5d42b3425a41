package bootstrap

import "fmt"

// tracker reports the fan-out progress of one stage.
type tracker interface {
	done() int
	total() int
	complete() bool
}

// counter tracks a stage whose results carry nothing the later stages need.
type counter struct {
	expected int
	seen     int
}

func newCounter(expected int) *counter {
	return &counter{expected: expected}
}

// recordCompletion counts one result and returns the new count.
func (c *counter) recordCompletion() (int, error) {
	if c.seen >= c.expected {
		return c.seen, fmt.Errorf("%w: already have %d of %d", ErrUnexpectedResult, c.seen, c.expected)
	}
	c.seen++
	return c.seen, nil
}

func (c *counter) done() int      { return c.seen }
func (c *counter) total() int     { return c.expected }
func (c *counter) complete() bool { return c.seen == c.expected }

// keyed tracks a stage whose results map a code to the UUID later stages
// use as parent.
type keyed struct {
	expected int
	values   map[string]string
}

func newKeyed(expected int) *keyed {
	return &keyed{expected: expected, values: make(map[string]string, expected)}
}

// record stores value under key and returns the updated map.
func (k *keyed) record(key, value string) (map[string]string, error) {
	if _, ok := k.values[key]; ok {
		return k.values, fmt.Errorf("%w: %q", ErrDuplicateResult, key)
	}
	if len(k.values) >= k.expected {
		return k.values, fmt.Errorf("%w: %q arrived after %d of %d", ErrUnexpectedResult, key, len(k.values), k.expected)
	}
	k.values[key] = value
	return k.values, nil
}

// lookup returns the value stored for key.
func (k *keyed) lookup(key string) (string, bool) {
	v, ok := k.values[key]
	return v, ok
}

func (k *keyed) snapshot() map[string]string {
	out := make(map[string]string, len(k.values))
	for key, v := range k.values {
		out[key] = v
	}
	return out
}

func (k *keyed) done() int      { return len(k.values) }
func (k *keyed) total() int     { return k.expected }
func (k *keyed) complete() bool { return len(k.values) == k.expected }
