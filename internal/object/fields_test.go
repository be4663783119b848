package object

import (
	"testing"

	"github.com/l1jgo/worldcore/internal/core/ecs"
)

func TestSchemaBlockIndices(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindPlayer, PlayerEnd},
		{KindCreature, CreatureEnd},
		{KindGameObject, GameObjectEnd},
		{KindCorpse, CorpseEnd},
	}
	for _, c := range cases {
		if got := SchemaOf(c.kind).Len(); got != c.want {
			t.Fatalf("%s schema len = %d, want %d", c.kind, got, c.want)
		}
	}
	if got := SchemaOf(KindPlayer).Fields[UnitTarget].Type; got != TypeGUID {
		t.Fatalf("player target field type = %d", got)
	}
	if got := SchemaOf(KindGameObject).Fields[GameObjectDynFlags].Conditional; !got {
		t.Fatalf("gameobject dynamic flags should be conditional")
	}
}

func TestSchemaConditionalSlots(t *testing.T) {
	s := SchemaOf(KindCreature)
	if len(s.Conditional) != 2 {
		t.Fatalf("creature conditional fields = %v", s.Conditional)
	}
	if s.ConditionalSlot(UnitDynamicFlags) != 0 || s.ConditionalSlot(UnitNpcFlags) != 1 {
		t.Fatalf("slots = %d,%d", s.ConditionalSlot(UnitDynamicFlags), s.ConditionalSlot(UnitNpcFlags))
	}
	if s.ConditionalSlot(UnitHealth) != -1 {
		t.Fatalf("health should not be conditional")
	}
}

func TestFieldTableDirtyOnlyOnChange(t *testing.T) {
	tbl := NewFieldTable(SchemaOf(KindCreature))
	fired := 0
	tbl.onChange = func() { fired++ }

	if !tbl.SetInt(UnitHealth, 100) {
		t.Fatalf("first set should report change")
	}
	if tbl.SetInt(UnitHealth, 100) {
		t.Fatalf("same value should not report change")
	}
	tbl.SetFloat(UnitSpeed, 2.5)
	if fired != 1 {
		t.Fatalf("onChange fired %d times, want 1", fired)
	}
	if !tbl.Dirty().Has(UnitHealth) || !tbl.Dirty().Has(UnitSpeed) || tbl.Dirty().Count() != 2 {
		t.Fatalf("dirty = %v", tbl.Dirty())
	}
	tbl.ClearDirty()
	tbl.AddFlag(UnitFlags, 0x4)
	if fired != 2 {
		t.Fatalf("onChange after clear fired %d times, want 2", fired)
	}
	if tbl.Float(UnitSpeed) != 2.5 {
		t.Fatalf("float round trip = %v", tbl.Float(UnitSpeed))
	}
	nd := tbl.NonDefault()
	if nd.Count() != 3 || !nd.Has(UnitHealth) || !nd.Has(UnitFlags) {
		t.Fatalf("non-default = %v", nd)
	}
}

func TestMaskOps(t *testing.T) {
	m := NewMask(40)
	if len(m) != 2 {
		t.Fatalf("mask words = %d", len(m))
	}
	m.Set(0)
	m.Set(33)
	o := NewMask(40)
	o.Set(5)
	m.Or(o)
	if m.Count() != 3 || !m.Has(33) || !m.Has(5) {
		t.Fatalf("mask = %v", m)
	}
	m.Unset(33)
	if m.Has(33) {
		t.Fatalf("unset failed")
	}
	m.Clear()
	if !m.IsZero() {
		t.Fatalf("clear failed")
	}
}

func TestEntityViewersAndCapabilities(t *testing.T) {
	e := New(ecs.NewGUID(1, 1), KindCreature, Position{X: 1, Y: 2})
	if !e.Fields.Dirty().IsZero() {
		t.Fatalf("new entity should start clean")
	}
	if e.Capabilities() != CapLiving {
		t.Fatalf("caps = %b", e.Capabilities())
	}
	e.Fields.SetGUID(UnitTarget, ecs.NewGUID(9, 1))
	if !e.Capabilities().Has(CapTarget) {
		t.Fatalf("expected target capability")
	}

	o := ecs.NewGUID(2, 1)
	vs := e.AddViewer(o)
	if e.AddViewer(o) != vs {
		t.Fatalf("AddViewer should be idempotent")
	}
	if len(vs.Projected) != 2 {
		t.Fatalf("projected slots = %d", len(vs.Projected))
	}
	if !e.RemoveViewer(o) || e.RemoveViewer(o) {
		t.Fatalf("remove viewer should succeed once")
	}

	g := New(ecs.NewGUID(3, 1), KindGameObject, Position{})
	if g.Capabilities() != CapPosition {
		t.Fatalf("gameobject caps = %b", g.Capabilities())
	}
}

func TestPositionFinite(t *testing.T) {
	var zero float32
	nan := zero / zero
	if (Position{X: nan}).Finite() {
		t.Fatalf("NaN position reported finite")
	}
	if !(Position{X: 1, Y: -3}).Finite() {
		t.Fatalf("finite position rejected")
	}
}
