package domain

// Context is the key/value state threaded through successive tool calls.
type Context map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the value under key if it is a string.
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}
