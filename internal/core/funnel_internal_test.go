package core

import (
	"testing"
)

func strPtr(s string) *string { return &s }

func TestFormatStatus(t *testing.T) {
	cases := []struct {
		name   string
		status *string
		custom *string
		want   string
	}{
		{"both", strPtr("Подбор"), strPtr("Назначенная встреча"), "Подбор: Назначенная встреча"},
		{"status only", strPtr("Бронь"), nil, "Бронь"},
		{"blank custom", strPtr("Бронь"), strPtr("  "), "Бронь"},
		{"missing status", nil, strPtr("что-то"), "Без статуса"},
		{"blank status", strPtr("   "), strPtr("x"), "Без статуса"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatStatus(tc.status, tc.custom); got != tc.want {
				t.Errorf("FormatStatus = %q, want %q", got, tc.want)
			}
		})
	}
}

func idsUpTo(n int64) []int64 {
	out := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		out = append(out, i)
	}
	return out
}

func leaf(name string, ids []int64) *FlowNode {
	return &FlowNode{Name: name, IDs: ids, childIndex: map[string]*FlowNode{}}
}

func TestFinalizeTreeGroupsMinorities(t *testing.T) {
	// 200 leads: two minority branches below 1% must fold into an aggregate.
	root := &FlowNode{
		Name: rootNodeLabel,
		IDs:  idsUpTo(200),
		childIndex: map[string]*FlowNode{
			"Подбор": leaf("Подбор", idsUpTo(180)),
			"Отказ":  leaf("Отказ", []int64{181}),
			"Бронь":  leaf("Бронь", []int64{182}),
		},
	}
	finalizeTree(root, 1.0)

	if root.Count != 200 {
		t.Fatalf("root count = %d, want 200", root.Count)
	}
	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2 (major + grouped)", len(root.Children))
	}
	if root.Children[0].Name != "Подбор" || root.Children[0].Count != 180 {
		t.Errorf("first child = %s/%d", root.Children[0].Name, root.Children[0].Count)
	}
	other := root.Children[1]
	if other.Name != otherPathsLabel || other.Count != 2 || len(other.IDs) != 2 {
		t.Errorf("grouped node = %+v", other)
	}
}

func TestFinalizeTreeKeepsSingleMinority(t *testing.T) {
	root := &FlowNode{
		Name: rootNodeLabel,
		IDs:  idsUpTo(200),
		childIndex: map[string]*FlowNode{
			"Подбор": leaf("Подбор", idsUpTo(199)),
			"Отказ":  leaf("Отказ", []int64{200}),
		},
	}
	finalizeTree(root, 1.0)

	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children))
	}
	for _, child := range root.Children {
		if child.Name == otherPathsLabel {
			t.Errorf("a single minority branch must keep its own name")
		}
	}
}

func TestFinalizeTreeCountInvariant(t *testing.T) {
	// A child's count never exceeds its parent's.
	root := &FlowNode{
		Name: rootNodeLabel,
		IDs:  idsUpTo(50),
		childIndex: map[string]*FlowNode{
			"Подбор": {
				Name: "Подбор",
				IDs:  idsUpTo(30),
				childIndex: map[string]*FlowNode{
					"Бронь": leaf("Бронь", idsUpTo(12)),
				},
			},
		},
	}
	finalizeTree(root, 1.0)

	var walk func(n *FlowNode)
	walk = func(n *FlowNode) {
		for _, c := range n.Children {
			if c.Count > n.Count {
				t.Errorf("node %s count %d exceeds parent %s count %d", c.Name, c.Count, n.Name, n.Count)
			}
			walk(c)
		}
	}
	walk(root)
}
