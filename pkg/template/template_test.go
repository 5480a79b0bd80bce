package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"fan": map[string]any{
			"email": "x@y.com",
			"name":  "Robin",
		},
		"amount":   5.0,
		"price":    12.5,
		"verified": true,
		"nothing":  nil,
		"tracks":   []any{"intro", "outro"},
		"count":    1000000,
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty template", "", ""},
		{"no tokens", "Thanks for following!", "Thanks for following!"},
		{"nested path", "{{fan.email}}", "x@y.com"},
		{"whitespace in segments", "Hi {{ fan . name }}!", "Hi Robin!"},
		{"integral number", "You tipped ${{amount}}", "You tipped $5"},
		{"fractional number", "{{price}}", "12.5"},
		{"large integer", "{{count}} streams", "1000000 streams"},
		{"boolean", "{{verified}}", "true"},
		{"slice index", "{{tracks.1}}", "outro"},
		{"missing leaf stays verbatim", "Hi {{fan.phone}}", "Hi {{fan.phone}}"},
		{"missing root stays verbatim", "{{order.id}}", "{{order.id}}"},
		{"non-indexable value stays verbatim", "{{fan.email.domain}}", "{{fan.email.domain}}"},
		{"nil value stays verbatim", "{{nothing}}", "{{nothing}}"},
		{"empty token stays verbatim", "{{}}", "{{}}"},
		{"multiple tokens", "{{fan.name}} <{{fan.email}}>", "Robin <x@y.com>"},
		{"unterminated token", "{{fan.name", "{{fan.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Resolve(tt.input, data))
		})
	}
}

func TestResolve_NilContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "{{fan.email}}", Resolve("{{fan.email}}", nil))
}

func TestResolveConfig(t *testing.T) {
	t.Parallel()

	config := map[string]string{
		"to":      "{{fan.email}}",
		"subject": "Welcome",
	}

	resolved := ResolveConfig(config, map[string]any{"fan": map[string]any{"email": "x@y.com"}})

	assert.Equal(t, map[string]string{"to": "x@y.com", "subject": "Welcome"}, resolved)
	assert.Equal(t, "{{fan.email}}", config["to"])
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"a": map[string]any{"b": nil},
		"c": map[string]string{"d": "e"},
	}

	value, ok := Lookup("a.b", data)
	assert.True(t, ok)
	assert.Nil(t, value)

	value, ok = Lookup("c.d", data)
	assert.True(t, ok)
	assert.Equal(t, "e", value)

	_, ok = Lookup("a.b.c", data)
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "null", String(nil))
	assert.Equal(t, "42", String(42))
	assert.Equal(t, "0.1", String(0.1))
	assert.Equal(t, `{"a":1}`, String(map[string]any{"a": 1}))
	assert.Equal(t, `["x","y"]`, String([]any{"x", "y"}))
}
