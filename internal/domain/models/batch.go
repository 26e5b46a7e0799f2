package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrBatchNotFound indicates the requested batch does not exist in the provided records.
var ErrBatchNotFound = errors.New("batch not found")

// ErrCyclicLineage indicates a batch was reached twice while assembling a lineage.
var ErrCyclicLineage = errors.New("cyclic batch lineage")

// BatchNode is one recorded processing step of a physical lot (harvest,
// fermentation, drying...). Children are the stages fed by this node's output.
type BatchNode struct {
	ID         string                 `json:"id" yaml:"id"`
	TemplateID string                 `json:"templateId" yaml:"templateId"`
	StageID    string                 `json:"stageId" yaml:"stageId"`
	Data       map[string]interface{} `json:"data" yaml:"data"`
	Children   []*BatchNode           `json:"children,omitempty" yaml:"children,omitempty"`
}

// BatchRecord is the flat persisted form of a batch. The root of a lineage
// has an empty ParentID.
type BatchRecord struct {
	ID         string                 `bson:"_id" json:"id"`
	ParentID   string                 `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	RootID     string                 `bson:"root_id" json:"root_id"`
	TemplateID string                 `bson:"template_id" json:"template_id"`
	StageID    string                 `bson:"stage_id" json:"stage_id"`
	Data       map[string]interface{} `bson:"data" json:"data"`
	CreatedAt  time.Time              `bson:"created_at" json:"created_at"`
}

// AssembleTree links flat records into the parent->children structure rooted
// at rootID. Siblings are ordered by creation time, then id.
func AssembleTree(records []BatchRecord, rootID string) (*BatchNode, error) {
	byParent := make(map[string][]BatchRecord, len(records))
	var root *BatchRecord

	for i := range records {
		rec := records[i]
		if rec.ID == rootID {
			root = &records[i]
			continue
		}
		byParent[rec.ParentID] = append(byParent[rec.ParentID], rec)
	}

	if root == nil {
		return nil, fmt.Errorf("assemble lineage %s: %w", rootID, ErrBatchNotFound)
	}

	for parent := range byParent {
		children := byParent[parent]
		sort.SliceStable(children, func(i, j int) bool {
			if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
				return children[i].CreatedAt.Before(children[j].CreatedAt)
			}
			return children[i].ID < children[j].ID
		})
	}

	visited := make(map[string]struct{}, len(records))

	var build func(rec BatchRecord) (*BatchNode, error)
	build = func(rec BatchRecord) (*BatchNode, error) {
		if _, seen := visited[rec.ID]; seen {
			return nil, fmt.Errorf("assemble lineage %s at %s: %w", rootID, rec.ID, ErrCyclicLineage)
		}
		visited[rec.ID] = struct{}{}

		node := &BatchNode{
			ID:         rec.ID,
			TemplateID: rec.TemplateID,
			StageID:    rec.StageID,
			Data:       rec.Data,
		}
		for _, child := range byParent[rec.ID] {
			childNode, err := build(child)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, childNode)
		}
		return node, nil
	}

	return build(*root)
}

// Walk visits the tree in pre-order. Returning false from fn skips the
// node's children.
func Walk(root *BatchNode, fn func(node *BatchNode, depth int) bool) {
	var visit func(node *BatchNode, depth int)
	visit = func(node *BatchNode, depth int) {
		if node == nil {
			return
		}
		if !fn(node, depth) {
			return
		}
		for _, child := range node.Children {
			visit(child, depth+1)
		}
	}
	visit(root, 0)
}

// NodeIDs returns every node id of the tree in pre-order.
func NodeIDs(root *BatchNode) []string {
	var ids []string
	Walk(root, func(node *BatchNode, _ int) bool {
		ids = append(ids, node.ID)
		return true
	})
	return ids
}
