package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskboard/internal/keys"
)

func TestViewListsBindingsAndCommands(t *testing.T) {
	out := New(keys.DefaultKeyMap(), 120, 60).View()

	for _, want := range []string{"Navigation", "Tasks", "mark completed", "assigned to me", "Commands (:)", "sort <field> [asc|desc]"} {
		assert.Contains(t, out, want)
	}
}

func TestWrapColumnsStartsNewRow(t *testing.T) {
	out := wrapColumns([]string{"aaaa", "bbbb", "cccc"}, 9)
	assert.Equal(t, "aaaabbbb\n\ncccc", out)
}
