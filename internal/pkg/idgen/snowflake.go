// Package idgen hands out the time-ordered identifiers used for account
// rows.
package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Initialize binds the generator to a node ID (0-1023). Every replica of
// the server must run with a distinct node ID, otherwise two replicas can
// mint the same identifier in the same millisecond. Only the first call
// takes effect.
func Initialize(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// NewID returns a fresh identifier as a decimal string. Falls back to
// node 0 when Initialize was never called, which is fine for tests and
// single-process runs.
func NewID() string {
	if node == nil {
		_ = Initialize(0)
	}
	return node.Generate().String()
}
