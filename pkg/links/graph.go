package links

import (
	"github.com/vmanoilov/bettergpt/pkg/conversation"
)

// GraphNode is one conversation together with its partitioned links.
type GraphNode struct {
	Conversation *conversation.Conversation `json:"conversation" yaml:"conversation"`
	Outgoing     []*ConversationLink        `json:"outgoing" yaml:"outgoing"`
	Incoming     []*ConversationLink        `json:"incoming" yaml:"incoming"`
}

// Graph is an in-memory view over the conversation and link collections. It
// is rebuilt on demand and never cached across mutations; expected graph
// sizes are in the hundreds of nodes, so a full rebuild is cheap enough.
//
// The graph is total over the conversation set: isolated conversations appear
// as nodes with empty link lists.
type Graph struct {
	Nodes map[conversation.ConversationID]*GraphNode `json:"nodes" yaml:"nodes"`

	// order preserves the store's listing order for deterministic iteration.
	order []conversation.ConversationID
}

func newGraph() *Graph {
	return &Graph{
		Nodes: make(map[conversation.ConversationID]*GraphNode),
	}
}

func (g *Graph) addNode(conv *conversation.Conversation) *GraphNode {
	node := &GraphNode{Conversation: conv}
	g.Nodes[conv.ID] = node
	g.order = append(g.order, conv.ID)
	return node
}

// Node returns the node for a conversation id.
func (g *Graph) Node(id conversation.ConversationID) (*GraphNode, bool) {
	node, ok := g.Nodes[id]
	return node, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// Walk visits every node in the store's listing order.
func (g *Graph) Walk(fn func(*GraphNode) bool) {
	for _, id := range g.order {
		if !fn(g.Nodes[id]) {
			return
		}
	}
}

// Links returns every link attached to any node, each exactly once (from the
// source node's outgoing list), in listing order.
func (g *Graph) Links() []*ConversationLink {
	var ret []*ConversationLink
	for _, id := range g.order {
		ret = append(ret, g.Nodes[id].Outgoing...)
	}
	return ret
}
