package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParams(t *testing.T) {
	assert.Nil(t, parseParams(nil))

	params := parseParams(map[string]string{
		"x":    "100",
		"text": "hello world",
		"keys": `["ctrl","c"]`,
		"flag": "true",
	})
	assert.Equal(t, float64(100), params["x"])
	assert.Equal(t, "hello world", params["text"])
	assert.Equal(t, []interface{}{"ctrl", "c"}, params["keys"])
	assert.Equal(t, true, params["flag"])
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "version", "submit", "status", "list", "health", "heartbeat", "events"} {
		assert.True(t, names[want], want)
	}
}
