package commenttree

import (
	"reflect"
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

// fixture builds:
//
//	c1
//	├── c2
//	│   └── c4
//	└── c3
//	c5
func fixture() []*Comment {
	rows := []Comment{
		{ID: "c1", Content: "root one", PostID: "p1"},
		{ID: "c2", Content: "reply", PostID: "p1", ParentID: strptr("c1")},
		{ID: "c3", Content: "second reply", PostID: "p1", ParentID: strptr("c1")},
		{ID: "c4", Content: "nested", PostID: "p1", ParentID: strptr("c2")},
		{ID: "c5", Content: "root two", PostID: "p1"},
	}
	return Build(rows)
}

func ids(forest []*Comment) []string {
	var out []string
	for _, node := range forest {
		out = append(out, node.ID)
		out = append(out, ids(node.Replies)...)
	}
	return out
}

func TestBuild(t *testing.T) {
	forest := fixture()
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	if forest[0].ID != "c1" || forest[1].ID != "c5" {
		t.Fatalf("root order wrong: %v", ids(forest))
	}
	if len(forest[0].Replies) != 2 || forest[0].Replies[0].ID != "c2" || forest[0].Replies[1].ID != "c3" {
		t.Fatalf("c1 replies wrong: %v", ids(forest[0].Replies))
	}
	if len(forest[0].Replies[0].Replies) != 1 || forest[0].Replies[0].Replies[0].ID != "c4" {
		t.Fatal("c4 not nested under c2")
	}
}

func TestBuildDropsOrphans(t *testing.T) {
	forest := Build([]Comment{
		{ID: "c1", Content: "root"},
		{ID: "c9", Content: "orphan", ParentID: strptr("gone")},
	})
	if got := ids(forest); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Fatalf("expected orphan dropped, got %v", got)
	}
}

func TestUpdateNode(t *testing.T) {
	forest := fixture()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	updated := UpdateNode(forest, "c2", Patch{Content: "edited", UpdatedAt: now})

	node := Find(updated, "c2")
	if node == nil || node.Content != "edited" || !node.UpdatedAt.Equal(now) {
		t.Fatalf("c2 not patched: %+v", node)
	}
	// Replies survive the patch.
	if len(node.Replies) != 1 || node.Replies[0].ID != "c4" {
		t.Fatalf("c2 lost its replies: %v", ids(node.Replies))
	}
	// Input forest untouched.
	if Find(forest, "c2").Content != "reply" {
		t.Fatal("input forest was mutated")
	}
	// Untouched subtrees are shared, not cloned.
	if updated[1] != forest[1] {
		t.Error("sibling root c5 should be reference-stable")
	}
	if updated[0].Replies[1] != forest[0].Replies[1] {
		t.Error("sibling reply c3 should be reference-stable")
	}
	if !reflect.DeepEqual(ids(updated), ids(forest)) {
		t.Fatalf("structure changed: %v vs %v", ids(updated), ids(forest))
	}
}

func TestUpdateNodeAbsentIDIsIdentity(t *testing.T) {
	forest := fixture()
	updated := UpdateNode(forest, "nope", Patch{Content: "x"})
	if !reflect.DeepEqual(updated, forest) {
		t.Fatal("absent id should return forest unchanged")
	}
}

func TestRemoveNodeCascades(t *testing.T) {
	forest := fixture()

	// Removing c2 discards c2 and its descendant c4 in one operation.
	pruned := RemoveNode(forest, "c2")

	want := []string{"c1", "c3", "c5"}
	if got := ids(pruned); !reflect.DeepEqual(got, want) {
		t.Fatalf("after remove: got %v, want %v", got, want)
	}
	if Find(pruned, "c4") != nil {
		t.Fatal("descendant c4 survived the cascade")
	}
	// Input untouched.
	if Find(forest, "c2") == nil {
		t.Fatal("input forest was mutated")
	}
}

func TestRemoveRootWithNestedReplies(t *testing.T) {
	forest := fixture()
	pruned := RemoveNode(forest, "c1")
	if got := ids(pruned); !reflect.DeepEqual(got, []string{"c5"}) {
		t.Fatalf("expected only c5, got %v", got)
	}
}

func TestRemoveNodeAbsentIDIsIdentity(t *testing.T) {
	forest := fixture()
	if got := RemoveNode(forest, "nope"); !reflect.DeepEqual(got, forest) {
		t.Fatal("absent id should return forest unchanged")
	}
}

func TestInsertReplyAppendsNewestLast(t *testing.T) {
	forest := fixture()

	first := InsertReply(forest, "c3", &Comment{ID: "c6", Content: "a"})
	second := InsertReply(first, "c3", &Comment{ID: "c7", Content: "b"})

	parent := Find(second, "c3")
	if len(parent.Replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(parent.Replies))
	}
	if parent.Replies[0].ID != "c6" || parent.Replies[1].ID != "c7" {
		t.Fatalf("reply order wrong: %v", ids(parent.Replies))
	}
	// c6 appears exactly once.
	seen := 0
	for _, id := range ids(second) {
		if id == "c6" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("c6 appears %d times", seen)
	}
	// Original forest untouched.
	if len(Find(forest, "c3").Replies) != 0 {
		t.Fatal("input forest was mutated")
	}
}

func TestInsertReplyUnknownParentIsIdentity(t *testing.T) {
	forest := fixture()
	got := InsertReply(forest, "nope", &Comment{ID: "c6"})
	if !reflect.DeepEqual(got, forest) {
		t.Fatal("unknown parent should return forest unchanged")
	}
}

func TestAppendRoot(t *testing.T) {
	forest := fixture()
	grown := Append(forest, &Comment{ID: "c6", Content: "newest root"})
	if grown[len(grown)-1].ID != "c6" {
		t.Fatal("new root should be last")
	}
	if len(forest) != 2 {
		t.Fatal("input forest was mutated")
	}
}

func TestDepth(t *testing.T) {
	forest := fixture()
	cases := map[string]int{"c1": 1, "c5": 1, "c2": 2, "c3": 2, "c4": 3, "nope": 0}
	for id, want := range cases {
		if got := Depth(forest, id); got != want {
			t.Errorf("Depth(%s) = %d, want %d", id, got, want)
		}
	}
}

func TestCount(t *testing.T) {
	if got := Count(fixture()); got != 5 {
		t.Fatalf("Count = %d, want 5", got)
	}
}
