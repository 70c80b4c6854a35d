package rpc

// Data is the structurally decoded input payload of a command. It is decoded
// once at the HTTP boundary, so guards and handlers operate on a typed map
// instead of probing raw request bodies.
type Data map[string]any

// Has reports whether the field is present in the payload. Presence is
// strict: a field explicitly set to null or an empty string is still present.
// Only a missing key counts as absent.
func (d Data) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// String returns the field as a string. The second return value is false when
// the field is absent or not a string.
func (d Data) String(name string) (string, bool) {
	v, ok := d[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns the field as a string, or fallback when absent or not a
// string.
func (d Data) StringOr(name, fallback string) string {
	if s, ok := d.String(name); ok {
		return s
	}
	return fallback
}
