package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandAccessors_PreferNamedFields(t *testing.T) {
	cmd := Command{Text: "legacy", ID: "t1", BaseURL: "http://h:1", Path: "/x"}
	assert.Equal(t, "t1", cmd.TaskID())
	assert.Equal(t, "http://h:1", cmd.LocalRegistryURL())
	assert.Equal(t, "/x", cmd.Target())
}

func TestCommandAccessors_FallBackToText(t *testing.T) {
	cmd := Command{Text: "legacy"}
	assert.Equal(t, "legacy", cmd.TaskID())
	assert.Equal(t, "legacy", cmd.LocalRegistryURL())
	assert.Equal(t, "legacy", cmd.Target())

	assert.Empty(t, Command{}.TaskID())
}
