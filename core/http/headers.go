package http

import "strings"

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Order is the order of first write.
type Headers struct {
	list []Header
}

// HeadersWithType returns a header list holding only a content-type.
func HeadersWithType(contentType string) Headers {
	var h Headers
	h.SetDefault("content-type", contentType)
	return h
}

// Set replaces the value of the header with exactly this name, or appends it.
func (h *Headers) Set(name, value string) {
	for i := range h.list {
		if h.list[i].Name == name {
			h.list[i].Value = strings.TrimLeft(value, " \t")
			return
		}
	}
	h.list = append(h.list, Header{Name: name, Value: value})
}

// SetNormal is Set with a lower-cased name, used for protocol headers.
func (h *Headers) SetNormal(name, value string) {
	h.Set(strings.ToLower(name), strings.TrimLeft(value, " \t"))
}

// SetDefault appends the header only when no entry with this exact name exists.
func (h *Headers) SetDefault(name, value string) {
	if _, ok := h.Lookup(name); ok {
		return
	}
	h.list = append(h.list, Header{Name: name, Value: value})
}

// Remove deletes the first entry whose name equals the lower-cased name.
func (h *Headers) Remove(name string) {
	lower := strings.ToLower(name)
	for i := range h.list {
		if h.list[i].Name == lower {
			h.list = append(h.list[:i], h.list[i+1:]...)
			return
		}
	}
}

// Lookup returns the value stored under exactly this name.
func (h *Headers) Lookup(name string) (string, bool) {
	for _, header := range h.list {
		if header.Name == name {
			return header.Value, true
		}
	}
	return "", false
}

// Get is Lookup without the presence flag.
func (h *Headers) Get(name string) string {
	value, _ := h.Lookup(name)
	return value
}

// All returns the entries in order. The slice must not be modified.
func (h *Headers) All() []Header {
	return h.list
}

// Len returns the number of stored entries.
func (h *Headers) Len() int {
	return len(h.list)
}
