package complex

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/volume"
)

func tank(id string, roles graph.Role, capacity float64) *graph.Part {
	return &graph.Part{
		ID:    id,
		Roles: graph.Normalize(roles),
		Container: volume.New(volume.Config{
			Capacity: capacity,
			Filters: map[string]volume.Filter{
				"WATER": volume.AllowAll(),
				"OIL":   volume.AllowAll(),
			},
		}),
		Placed: true,
	}
}

func TestNew_NilGraph(t *testing.T) {
	_, err := New("N1", "fluid", nil, Options{})
	require.ErrorIs(t, err, ErrNilGraph)
}

func TestComplex_AggregatesFollowContainers(t *testing.T) {
	c, err := New("N1", "fluid", graph.New(), Options{})
	require.NoError(t, err)

	store := tank("S", graph.Storage, 100)
	req := tank("R", graph.Requester, 50)
	store.Container.TryAdd("WATER", 40)

	assert.True(t, c.AddPart(store))
	assert.False(t, c.AddPart(store), "second add is a no-op")
	assert.True(t, c.AddPart(req))
	assert.InDelta(t, 40, c.TotalValue(), 1e-9, "existing contents are counted on add")

	store.Container.TryAdd("OIL", 10)
	r := store.Container.TryTransferTo(req.Container, "WATER", 15)
	require.True(t, r.OK())

	assert.InDelta(t, 50, c.TotalValue(), 1e-9)
	assert.InDelta(t, 40, c.TotalByType("WATER"), 1e-9)
	assert.InDelta(t, 35, c.TotalByRole(graph.Storage), 1e-9)
	assert.InDelta(t, 15, c.TotalByRole(graph.Requester), 1e-9)
	assert.InDelta(t, 50, c.TotalByRole(graph.Transmitter), 1e-9, "every part is a transmitter")
	assert.InDelta(t, 25, c.TotalValueFor("WATER", graph.Storage), 1e-9)
	assert.InDelta(t, 10, c.TotalsByType().Get("OIL"), 1e-9)

	before := c.TotalValue()
	c.Recompute()
	assert.InDelta(t, before, c.TotalValue(), 1e-9)
	assert.InDelta(t, 15, c.TotalByRole(graph.Requester), 1e-9)
}

func TestComplex_RolesAreDisjointBuckets(t *testing.T) {
	c, err := New("N1", "fluid", graph.New(), Options{})
	require.NoError(t, err)

	both := tank("B", graph.Storage|graph.Requester, 100)
	both.Container.TryAdd("WATER", 30)
	only := tank("S", graph.Storage, 100)
	only.Container.TryAdd("WATER", 20)
	c.AddPart(both)
	c.AddPart(only)

	assert.Len(t, c.PartsWithRole(graph.Storage), 2)
	assert.Len(t, c.PartsWithRole(graph.Requester), 1)
	assert.Equal(t, 2, c.CountWithRole(graph.Storage))
	assert.InDelta(t, 50, c.TotalByRole(graph.Storage), 1e-9)
	assert.InDelta(t, 50, c.TotalByRole(graph.Storage|graph.Requester), 1e-9, "a multi-role part is counted once")
	assert.Nil(t, c.PartsWithRole(0))
}

func TestComplex_RemovePart(t *testing.T) {
	c, err := New("N1", "fluid", graph.New(), Options{})
	require.NoError(t, err)
	p := tank("S", graph.Storage, 100)
	p.Container.TryAdd("WATER", 30)
	c.AddPart(p)

	assert.True(t, c.RemovePart(p))
	assert.False(t, c.RemovePart(p))
	assert.False(t, c.Has("S"))
	assert.InDelta(t, 0, c.TotalValue(), 1e-9)
	assert.Equal(t, 0, c.CountWithRole(graph.Storage))

	// The detached container no longer drives the aggregates.
	p.Container.TryAdd("WATER", 5)
	assert.InDelta(t, 0, c.TotalValue(), 1e-9)
}

func TestComplex_AttachReclaimsMembers(t *testing.T) {
	owner, err := New("N1", "fluid", graph.New(), Options{})
	require.NoError(t, err)
	p := tank("S", graph.Storage, 100)
	p.Container.TryAdd("WATER", 30)
	owner.AddPart(p)

	// Another complex claims the part and is then thrown away.
	other, err := New("N2", "fluid", graph.New(), Options{})
	require.NoError(t, err)
	other.AddPart(p)
	other.Detach()

	owner.Attach()
	p.Container.TryAdd("WATER", 5)
	assert.InDelta(t, 35, owner.TotalValue(), 1e-9)
	assert.InDelta(t, 35, owner.TotalByType("WATER"), 1e-9)
	assert.InDelta(t, 35, owner.TotalByRole(graph.Storage), 1e-9)
}

func TestComplex_UntrackedRemovalIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	c, err := New("N1", "fluid", graph.New(), Options{Logger: log.New(&buf, "", 0)})
	require.NoError(t, err)

	c.NotifyRemovedValue(graph.Normalize(graph.Storage), "WATER", 3)
	assert.InDelta(t, 0, c.TotalValue(), 1e-9)
	assert.Contains(t, buf.String(), "untracked type WATER")
}

func TestComplex_ControllerRequirement(t *testing.T) {
	c, err := New("N1", "power", graph.New(), Options{RequiresController: true})
	require.NoError(t, err)
	assert.False(t, c.Working())

	c1 := &graph.Part{ID: "C1", Roles: graph.Normalize(graph.Controller)}
	c2 := &graph.Part{ID: "C2", Roles: graph.Normalize(graph.Controller)}
	c.AddPart(c1)
	c.AddPart(c2)
	assert.True(t, c.Working())
	assert.Same(t, c2, c.Controller(), "last controller wins")

	c.RemovePart(c2)
	assert.Same(t, c1, c.Controller())
	c.RemovePart(c1)
	assert.Nil(t, c.Controller())
	assert.False(t, c.Working())
}
