package broker

import (
	"strings"
	"sync"
)

// FilterTree is a prefix tree of topic filters for wildcard matching
// against concrete topic names.
type FilterTree struct {
	root *filterNode
	mu   sync.RWMutex
}

type filterNode struct {
	filter   string // set when a filter ends at this node
	children map[string]*filterNode
}

func NewFilterTree() *FilterTree {
	return &FilterTree{root: newFilterNode()}
}

func newFilterNode() *filterNode {
	return &filterNode{children: make(map[string]*filterNode)}
}

// Add inserts a filter. Adding a filter twice is a no-op.
func (t *FilterTree) Add(filter string) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.root
	for _, segment := range strings.Split(filter, "/") {
		next, exists := current.children[segment]
		if !exists {
			next = newFilterNode()
			current.children[segment] = next
		}
		current = next
	}
	current.filter = filter

	return nil
}

// Remove deletes a filter and prunes empty branches.
func (t *FilterTree) Remove(filter string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remove(t.root, strings.Split(filter, "/"), 0)
}

func (t *FilterTree) remove(node *filterNode, segments []string, depth int) {
	child, exists := node.children[segments[depth]]
	if !exists {
		return
	}

	if depth == len(segments)-1 {
		child.filter = ""
	} else {
		t.remove(child, segments, depth+1)
	}

	if child.filter == "" && len(child.children) == 0 {
		delete(node.children, segments[depth])
	}
}

// Match returns every stored filter matching topic.
func (t *FilterTree) Match(topic string) []string {
	if topic == "" {
		return nil
	}

	segments := strings.Split(topic, "/")

	t.mu.RLock()
	defer t.mu.RUnlock()

	var matches []string
	t.match(t.root, segments, 0, &matches)
	return matches
}

func (t *FilterTree) match(node *filterNode, segments []string, depth int, matches *[]string) {
	// "a/#" also matches the parent level "a"
	if child, ok := node.children["#"]; ok && !skipWildcard(segments, depth) {
		*matches = append(*matches, child.filter)
	}

	if depth == len(segments) {
		if node.filter != "" {
			*matches = append(*matches, node.filter)
		}
		return
	}

	if child, ok := node.children[segments[depth]]; ok {
		t.match(child, segments, depth+1, matches)
	}

	if child, ok := node.children["+"]; ok && !skipWildcard(segments, depth) {
		t.match(child, segments, depth+1, matches)
	}
}

// skipWildcard reports whether a wildcard at depth may not match, as
// wildcards in the first level never match '$' topics.
func skipWildcard(segments []string, depth int) bool {
	return depth == 0 && strings.HasPrefix(segments[0], "$")
}

// Len returns the number of stored filters.
func (t *FilterTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return countFilters(t.root)
}

func countFilters(node *filterNode) int {
	n := 0
	if node.filter != "" {
		n++
	}
	for _, child := range node.children {
		n += countFilters(child)
	}
	return n
}
