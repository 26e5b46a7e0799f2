package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleTree(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []BatchRecord{
		{ID: "tostado-2", ParentID: "secado", StageID: "tostado", CreatedAt: base.Add(3 * time.Hour)},
		{ID: "cosecha", StageID: "fermentacion", TemplateID: "cacao", CreatedAt: base},
		{ID: "tostado-1", ParentID: "secado", StageID: "tostado", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "secado", ParentID: "cosecha", StageID: "secado", CreatedAt: base.Add(time.Hour)},
		{ID: "otra-cosecha", StageID: "fermentacion", CreatedAt: base},
	}

	root, err := AssembleTree(records, "cosecha")
	require.NoError(t, err)

	assert.Equal(t, "cacao", root.TemplateID)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 2)
	assert.Equal(t, []string{"cosecha", "secado", "tostado-1", "tostado-2"}, NodeIDs(root))
}

func TestAssembleTree_SiblingTieBreaksOnID(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []BatchRecord{
		{ID: "root", CreatedAt: at},
		{ID: "b", ParentID: "root", CreatedAt: at},
		{ID: "a", ParentID: "root", CreatedAt: at},
	}

	root, err := AssembleTree(records, "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "a", "b"}, NodeIDs(root))
}

func TestAssembleTree_MissingRoot(t *testing.T) {
	_, err := AssembleTree([]BatchRecord{{ID: "x"}}, "cosecha")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestAssembleTree_DuplicateRecordIsRejected(t *testing.T) {
	records := []BatchRecord{
		{ID: "root"},
		{ID: "a", ParentID: "root"},
		{ID: "b", ParentID: "root"},
		{ID: "a", ParentID: "b"},
	}

	_, err := AssembleTree(records, "root")
	assert.ErrorIs(t, err, ErrCyclicLineage)
}

func TestWalk_StopsDescending(t *testing.T) {
	root := &BatchNode{ID: "r", Children: []*BatchNode{
		{ID: "a", Children: []*BatchNode{{ID: "a1"}}},
		{ID: "b"},
	}}

	var visited []string
	Walk(root, func(node *BatchNode, depth int) bool {
		visited = append(visited, node.ID)
		return node.ID != "a"
	})

	assert.Equal(t, []string{"r", "a", "b"}, visited)
	assert.Empty(t, NodeIDs(nil))
}
