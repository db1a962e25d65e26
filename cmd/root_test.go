package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "import", "answer", "batch", "sync", "serve"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestSyncStatusSubcommand(t *testing.T) {
	var found bool
	for _, c := range syncCmd.Commands() {
		if c.Name() == "status" {
			found = true
		}
	}
	assert.True(t, found)
}
