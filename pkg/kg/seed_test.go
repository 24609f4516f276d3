package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_PopulatesLookupAndNeighbors(t *testing.T) {
	g := New()
	require.NoError(t, Seed(g))

	hits := g.Lookup("PT PMA")
	require.NotEmpty(t, hits)

	sub, err := g.Neighbors("pt_pma", nil, 1)
	require.NoError(t, err)
	assert.Contains(t, nodeIDs(sub.Nodes), "bkpm")
}

func TestSeed_NoDanglingEdges(t *testing.T) {
	g := New()
	require.NoError(t, Seed(g), "every seeded edge must reference an already-seeded node")
}
