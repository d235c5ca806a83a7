// Package commenttree maintains the nested comment forest for a single
// post. Transforms never mutate their input: untouched subtrees are
// shared, nodes on the path to the target are copied.
package commenttree

import "time"

// MaxDepth is the deepest level a comment may occupy: a root comment
// plus three levels of replies. Replies that would land deeper are
// rejected at create time and the reply control is hidden client-side.
const MaxDepth = 4

// Author is the public author projection embedded in responses.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// Comment is one node of the forest. Replies are owned by value slice;
// there is no parent back-pointer, ancestry is the traversal path.
type Comment struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	AuthorID  string     `json:"authorId"`
	PostID    string     `json:"postId"`
	ParentID  *string    `json:"parentId,omitempty"`
	Author    Author     `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Replies   []*Comment `json:"replies"`
}

// Patch carries the scalar fields an update may replace. Replies are
// never patched: an updated node keeps its existing subtree.
type Patch struct {
	Content   string
	UpdatedAt time.Time
}

// Build reconstructs the forest from flat rows. Sibling order follows
// row order (the store returns creation order), so locally appended
// replies stay newest-last. Rows whose parent is absent are dropped.
func Build(rows []Comment) []*Comment {
	byID := make(map[string]*Comment, len(rows))
	nodes := make([]*Comment, 0, len(rows))
	for i := range rows {
		node := rows[i]
		node.Replies = []*Comment{}
		byID[node.ID] = &node
		nodes = append(nodes, &node)
	}

	forest := make([]*Comment, 0)
	for _, node := range nodes {
		if node.ParentID == nil {
			forest = append(forest, node)
			continue
		}
		parent, ok := byID[*node.ParentID]
		if !ok {
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return forest
}

// UpdateNode replaces the scalar fields of the node with the given id,
// keeping its replies. The input forest is unchanged; if the id is
// absent the input is returned as-is (the caller owns that invariant).
func UpdateNode(forest []*Comment, id string, patch Patch) []*Comment {
	out, changed := transform(forest, id, func(node *Comment) []*Comment {
		next := *node
		next.Content = patch.Content
		if !patch.UpdatedAt.IsZero() {
			next.UpdatedAt = patch.UpdatedAt
		}
		return []*Comment{&next}
	})
	if !changed {
		return forest
	}
	return out
}

// RemoveNode deletes the node with the given id wherever it occurs,
// discarding its entire reply subtree. No orphan re-parenting.
func RemoveNode(forest []*Comment, id string) []*Comment {
	out, changed := transform(forest, id, func(*Comment) []*Comment {
		return nil
	})
	if !changed {
		return forest
	}
	return out
}

// InsertReply appends node to the replies of the comment with id
// parentID, after all previously known siblings. An unknown parent
// returns the forest unchanged; the caller must have fetched it.
func InsertReply(forest []*Comment, parentID string, node *Comment) []*Comment {
	out, changed := transform(forest, parentID, func(parent *Comment) []*Comment {
		next := *parent
		child := *node
		if child.Replies == nil {
			child.Replies = []*Comment{}
		}
		next.Replies = append(append([]*Comment{}, parent.Replies...), &child)
		return []*Comment{&next}
	})
	if !changed {
		return forest
	}
	return out
}

// Append adds a new root comment at the end of the forest.
func Append(forest []*Comment, node *Comment) []*Comment {
	child := *node
	if child.Replies == nil {
		child.Replies = []*Comment{}
	}
	return append(append([]*Comment{}, forest...), &child)
}

// Find returns the node with the given id, or nil.
func Find(forest []*Comment, id string) *Comment {
	for _, node := range forest {
		if node.ID == id {
			return node
		}
		if hit := Find(node.Replies, id); hit != nil {
			return hit
		}
	}
	return nil
}

// Depth returns the nesting level of the node with the given id: 1 for
// a root comment, counting ancestor hops on the traversal path. Returns
// 0 when the id is absent.
func Depth(forest []*Comment, id string) int {
	for _, node := range forest {
		if node.ID == id {
			return 1
		}
		if d := Depth(node.Replies, id); d > 0 {
			return d + 1
		}
	}
	return 0
}

// Count returns the total number of nodes in the forest.
func Count(forest []*Comment) int {
	total := 0
	for _, node := range forest {
		total += 1 + Count(node.Replies)
	}
	return total
}

// transform rebuilds the sibling list containing id, applying fn to the
// matched node. fn returns the replacement nodes (empty for removal).
// Siblings and subtrees off the path are shared, not copied.
func transform(forest []*Comment, id string, fn func(*Comment) []*Comment) ([]*Comment, bool) {
	for i, node := range forest {
		if node.ID == id {
			out := make([]*Comment, 0, len(forest))
			out = append(out, forest[:i]...)
			out = append(out, fn(node)...)
			out = append(out, forest[i+1:]...)
			return out, true
		}
		if replies, changed := transform(node.Replies, id, fn); changed {
			next := *node
			next.Replies = replies
			out := make([]*Comment, 0, len(forest))
			out = append(out, forest[:i]...)
			out = append(out, &next)
			out = append(out, forest[i+1:]...)
			return out, true
		}
	}
	return forest, false
}
