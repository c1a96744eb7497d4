package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator issues request ids. It holds one snowflake node for the
// process; without a node it falls back to KSUIDs.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for nodeID. An invalid node id leaves
// the generator in KSUID mode.
func NewIDGenerator(nodeID int64) *IDGenerator {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &IDGenerator{}
	}
	return &IDGenerator{node: node}
}

// NewIDGeneratorFromEnv reads the node id from SNOWFLAKE_NODE, defaulting
// to node 1.
func NewIDGeneratorFromEnv() *IDGenerator {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		nodeID = 1
	}
	return NewIDGenerator(nodeID)
}

func (g *IDGenerator) Next() string {
	if g == nil || g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
