package cargosave

import (
	"sort"

	"github.com/disiqueira/gotree"
)

// DependencyGraph is a directed graph over workspace package names with
// forward and reverse edges. It is built once per invocation and discarded
// after.
type DependencyGraph struct {
	nodes map[string]*graphNode
}

type graphNode struct {
	name       string
	deps       []string
	dependents []string
}

// BuildDependencyGraph builds forward edges pkg -> deps and their transpose
// in a single pass over the workspace members.
func BuildDependencyGraph(ws *Workspace) *DependencyGraph {
	g := &DependencyGraph{nodes: make(map[string]*graphNode, len(ws.Packages))}

	node := func(name string) *graphNode {
		n, ok := g.nodes[name]
		if !ok {
			n = &graphNode{name: name}
			g.nodes[name] = n
		}
		return n
	}
	for _, pkg := range ws.Packages {
		node(pkg.Name).deps = pkg.Dependencies
		for _, dep := range pkg.Dependencies {
			d := node(dep)
			d.dependents = append(d.dependents, pkg.Name)
		}
	}
	return g
}

// Dependents returns the direct reverse edges of a package.
func (g *DependencyGraph) Dependents(name string) []string {
	if node, ok := g.nodes[name]; ok {
		return node.dependents
	}
	return nil
}

// ReverseClosure returns seed ∪ {transitive reverse-reachable nodes from
// seed}. The traversal is visited-set bounded: cargo forbids cycles among
// workspace members, but a cycle introduced by a bug cannot hang the walk.
func (g *DependencyGraph) ReverseClosure(seed map[string]struct{}) map[string]struct{} {
	closure := make(map[string]struct{}, len(seed))
	queue := make([]string, 0, len(seed))
	for name := range seed {
		closure[name] = struct{}{}
		queue = append(queue, name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		for _, dependent := range g.Dependents(name) {
			if _, seen := closure[dependent]; seen {
				continue
			}
			closure[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}
	return closure
}

// Render returns a tree view of the workspace dependency graph. Roots are
// packages nothing depends on; shared subtrees appear once per dependent.
func (g *DependencyGraph) Render() string {
	var roots []string
	for name, node := range g.nodes {
		if len(node.dependents) == 0 {
			roots = append(roots, name)
		}
	}
	if len(roots) == 0 {
		// fully cyclic - start a subtree at every node
		for name := range g.nodes {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)

	tree := gotree.New("workspace")
	for _, root := range roots {
		g.renderSubtree(tree, root, map[string]struct{}{})
	}
	return tree.Print()
}

func (g *DependencyGraph) renderSubtree(parent gotree.Tree, name string, path map[string]struct{}) {
	if _, onPath := path[name]; onPath {
		parent.Add(name + " (cycle)")
		return
	}
	path[name] = struct{}{}
	defer delete(path, name)

	node := parent.Add(name)
	deps := append([]string{}, g.nodes[name].deps...)
	sort.Strings(deps)
	for _, dep := range deps {
		if _, ok := g.nodes[dep]; !ok {
			continue
		}
		g.renderSubtree(node, dep, path)
	}
}
