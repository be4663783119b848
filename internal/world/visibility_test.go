package world

import (
	"testing"

	"github.com/l1jgo/worldcore/internal/object"
)

func TestResolverHysteresis(t *testing.T) {
	r := Resolver{Radius: 100, GreyZone: 20}
	if !r.Enters(100, 100) || r.Enters(101, 100) {
		t.Fatalf("enter threshold wrong")
	}
	if !r.Stays(120, 100) || r.Stays(121, 100) {
		t.Fatalf("stay threshold wrong")
	}
}

func TestVisibleSetConverges(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	o, sess := addObserver(t, p, gridCenter, 1)
	near := spawnCreature(t, p, object.Position{X: 316, Y: 266})
	far := spawnCreature(t, p, object.Position{X: 416, Y: 266})

	tick(t, p)
	if !o.Knows(o.GUID()) || !sess.sees(o.GUID()) {
		t.Fatalf("observer does not see itself")
	}
	if !sess.sees(near.GUID) || sess.sees(far.GUID) {
		t.Fatalf("near=%v far=%v", sess.sees(near.GUID), sess.sees(far.GUID))
	}

	if err := p.Relocate(far, object.Position{X: 346, Y: 266}); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	tick(t, p)
	if !sess.sees(far.GUID) || !far.HasViewer(o.GUID()) {
		t.Fatalf("entity moved into range not visible")
	}
	p.Validate()
	if len(sess.errs) != 0 {
		t.Fatalf("mirror errors: %v", sess.errs)
	}
}

func TestGreyZoneKeepsEntityUntilItLeavesTheMargin(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	o, sess := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 356, Y: 266})
	tick(t, p)
	if !sess.sees(e.GUID) {
		t.Fatalf("entity at 90 not visible")
	}

	if err := p.Relocate(e, object.Position{X: 376, Y: 266}); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	tick(t, p)
	if !o.Knows(e.GUID) || sess.destroyed(e.GUID) {
		t.Fatalf("entity at 110 dropped inside the grey zone")
	}

	if err := p.Relocate(e, object.Position{X: 391, Y: 266}); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	tick(t, p)
	if o.Knows(e.GUID) || e.HasViewer(o.GUID()) {
		t.Fatalf("entity at 125 still known")
	}
	if !sess.destroyed(e.GUID) || sess.sees(e.GUID) {
		t.Fatalf("client copy not destroyed")
	}

	// Coming back inside the grey zone is not enough to re-enter.
	if err := p.Relocate(e, object.Position{X: 376, Y: 266}); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	tick(t, p)
	if o.Knows(e.GUID) {
		t.Fatalf("entity re-entered at 110")
	}
}

// Scenario B.
func TestMovingInsideLoadedGridCausesNoChurn(t *testing.T) {
	store := newMemStore()
	p := newTestPartition(t, store, testSettings(), nil)
	o, sess := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)
	loads := store.loads()
	grids := p.GridCount()

	if err := p.Relocate(o.Body, object.Position{X: 340, Y: 266}); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	tick(t, p)
	if store.loads() != loads || p.GridCount() != grids {
		t.Fatalf("move caused tile loads: %d -> %d", loads, store.loads())
	}
	if len(sess.mirror.Destroyed) != 0 {
		t.Fatalf("move caused destroys: %v", sess.mirror.Destroyed)
	}
	if s := p.Stats(); s.Entered != 0 || s.Left != 0 {
		t.Fatalf("entered=%d left=%d", s.Entered, s.Left)
	}
	if !sess.sees(e.GUID) {
		t.Fatalf("entity lost")
	}
}

func TestCoLocatedObserversVisitEachCellOnce(t *testing.T) {
	single := newTestPartition(t, newMemStore(), testSettings(), nil)
	addObserver(t, single, gridCenter, 1)
	spawnCreature(t, single, object.Position{X: 300, Y: 300})

	double := newTestPartition(t, newMemStore(), testSettings(), nil)
	addObserver(t, double, gridCenter, 1)
	addObserver(t, double, gridCenter, 2)
	spawnCreature(t, double, object.Position{X: 300, Y: 300})

	for i := 0; i < 2; i++ {
		tick(t, single)
		tick(t, double)
	}
	a, b := single.Stats(), double.Stats()
	if a.CellsVisited == 0 || a.CellsVisited != b.CellsVisited {
		t.Fatalf("cells visited single=%d double=%d", a.CellsVisited, b.CellsVisited)
	}
	// One extra body, the creature still updated once.
	if b.EntitiesUpdated != a.EntitiesUpdated+1 {
		t.Fatalf("entities updated single=%d double=%d", a.EntitiesUpdated, b.EntitiesUpdated)
	}
}

// Scenario D.
func TestLootableFlagIsProjectedPerObserver(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	killer, ks := addObserver(t, p, gridCenter, 1)
	_, bs := addObserver(t, p, object.Position{X: 280, Y: 266}, 2)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)

	e.Relations.HasLoot = true
	p.Kill(e, killer.GUID(), 0)
	tick(t, p)

	got := uint32(ks.mirror.Objects[uint64(e.GUID)].Values[object.UnitDynamicFlags])
	if got&object.DynLootable == 0 || got&object.DynDead == 0 {
		t.Fatalf("killer flags = %b", got)
	}
	other := uint32(bs.mirror.Objects[uint64(e.GUID)].Values[object.UnitDynamicFlags])
	if other&object.DynLootable != 0 || other&object.DynTapped == 0 {
		t.Fatalf("bystander flags = %b", other)
	}
}

func TestDespawnDestroysClientCopies(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	o, sess := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)

	if !p.Despawn(e.GUID, true) {
		t.Fatalf("despawn of resident entity failed")
	}
	if _, ok := p.Get(e.GUID); !ok {
		t.Fatalf("entity gone before flush")
	}
	tick(t, p)
	if o.Knows(e.GUID) || !sess.destroyed(e.GUID) {
		t.Fatalf("known=%v destroyed=%v", o.Knows(e.GUID), sess.destroyed(e.GUID))
	}
	if !sess.animated(e.GUID) {
		t.Fatalf("despawn animation flag lost")
	}
	if _, ok := p.Get(e.GUID); ok {
		t.Fatalf("entity still resident after flush")
	}
}

func TestDespawnWithoutAnimation(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	_, sess := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)

	p.Despawn(e.GUID, false)
	tick(t, p)
	if !sess.destroyed(e.GUID) || sess.animated(e.GUID) {
		t.Fatalf("destroyed=%v animated=%v", sess.destroyed(e.GUID), sess.animated(e.GUID))
	}
}

func TestRetriedDestroyKeepsAnimation(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	_, sess := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)

	sess.fail = true
	p.Despawn(e.GUID, true)
	tick(t, p)
	if sess.destroyed(e.GUID) {
		t.Fatalf("destroy delivered through a failing session")
	}
	sess.fail = false
	tick(t, p)
	if !sess.animated(e.GUID) {
		t.Fatalf("retried destroy dropped the despawn animation")
	}
}

func TestObserverPullsGridsInReach(t *testing.T) {
	store := newMemStore()
	store.add(1, SpawnRecord{ID: 9, Kind: object.KindGameObject, Pos: object.Position{X: 560, Y: 266}})
	p := newTestPartition(t, store, testSettings(), nil)
	_, sess := addObserver(t, p, object.Position{X: 500, Y: 266}, 1)
	tick(t, p)
	if p.GridState(GridCoord{33, 32}) != GridActive {
		t.Fatalf("neighbour grid not loaded")
	}
	tick(t, p)
	if len(sess.mirror.Objects) != 2 {
		t.Fatalf("mirror holds %d objects, want self and the gameobject", len(sess.mirror.Objects))
	}
}

func TestValidatePanicsOnAsymmetricRelation(t *testing.T) {
	p := newTestPartition(t, newMemStore(), testSettings(), nil)
	o, _ := addObserver(t, p, gridCenter, 1)
	e := spawnCreature(t, p, object.Position{X: 300, Y: 266})
	tick(t, p)
	p.Validate()

	e.RemoveViewer(o.GUID())
	defer func() {
		if recover() == nil {
			t.Fatalf("Validate did not panic")
		}
	}()
	p.Validate()
}
