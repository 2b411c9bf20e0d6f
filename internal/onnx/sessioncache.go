package onnx

import "strings"

// sessionCache hands out one live engine session per input-name set, creating
// entries on first use. The token input name is probed at run time, so a
// cached entry can turn out to be unusable; evict drops and destroys it
// instead of pinning it until close.
type sessionCache[S any] struct {
	create  func(names []string) (S, error)
	destroy func(S)
	entries map[string]S
}

func newSessionCache[S any](create func(names []string) (S, error), destroy func(S)) *sessionCache[S] {
	return &sessionCache[S]{
		create:  create,
		destroy: destroy,
		entries: make(map[string]S),
	}
}

// get returns the session for names, creating it if needed, along with the
// cache key identifying the entry.
func (c *sessionCache[S]) get(names []string) (S, string, error) {
	key := strings.Join(names, ",")
	if s, ok := c.entries[key]; ok {
		return s, key, nil
	}
	s, err := c.create(names)
	if err != nil {
		var zero S
		return zero, key, err
	}
	c.entries[key] = s
	return s, key, nil
}

func (c *sessionCache[S]) evict(key string) {
	if s, ok := c.entries[key]; ok {
		c.destroy(s)
		delete(c.entries, key)
	}
}

func (c *sessionCache[S]) clear() {
	for key, s := range c.entries {
		c.destroy(s)
		delete(c.entries, key)
	}
}
