package replication

import "github.com/l1jgo/worldcore/internal/object"

// Project returns the value of field i of e as observer viewer must see it.
// Non-conditional fields pass through unchanged; conditional fields are
// recomputed from e's relations and the viewer's identity on every call.
func Project(e *object.Entity, i int, viewer *object.Entity) uint64 {
	raw := e.Fields.Raw(i)
	if !e.Fields.Schema().Fields[i].Conditional {
		return raw
	}
	switch e.Kind {
	case object.KindPlayer, object.KindCreature:
		switch i {
		case object.UnitDynamicFlags:
			return uint64(unitDynamicFlags(e, uint32(raw), viewer))
		case object.UnitNpcFlags:
			return uint64(unitNpcFlags(e, uint32(raw), viewer))
		}
	case object.KindGameObject:
		if i == object.GameObjectDynFlags {
			return uint64(gameObjectDynFlags(e, uint32(raw), viewer))
		}
	case object.KindCorpse:
	default:
		panic("replication: projection for invalid kind " + e.Kind.String())
	}
	return raw
}

// Visible reports whether field i of e may be sent to viewer at all.
func Visible(e *object.Entity, i int, viewer *object.Entity) bool {
	switch e.Fields.Schema().Fields[i].Vis {
	case object.VisOwner:
		return e.OwnedBy(viewer.GUID)
	default:
		return true
	}
}

// lootEntitled reports whether viewer may loot e.
func lootEntitled(e *object.Entity, viewer *object.Entity) bool {
	rel := e.Relations
	if rel.LootRecipient.IsZero() {
		return false
	}
	if rel.LootRecipient == viewer.GUID {
		return true
	}
	return rel.LootGroup != 0 && rel.LootGroup == viewer.Group
}

// 掉落相關旗標只對有權拾取的觀察者成立。
func unitDynamicFlags(e *object.Entity, raw uint32, viewer *object.Entity) uint32 {
	f := raw &^ (object.DynLootable | object.DynTapped | object.DynTappedByObserver)
	if e.Relations.LootRecipient.IsZero() {
		return f
	}
	if lootEntitled(e, viewer) {
		f |= object.DynTappedByObserver
		if e.Life.Dead && e.Relations.HasLoot {
			f |= object.DynLootable
		}
	} else {
		f |= object.DynTapped
	}
	return f
}

func unitNpcFlags(e *object.Entity, raw uint32, viewer *object.Entity) uint32 {
	f := raw
	if f == 0 {
		return 0
	}
	if hostile(e, viewer) {
		return f &^ object.NpcInteractionMask
	}
	if f&object.NpcTrainer != 0 && e.Relations.TrainerClass != 0 && e.Relations.TrainerClass != viewer.Class {
		f &^= object.NpcTrainer
	}
	if f&object.NpcSpiritHealer != 0 && !viewer.IsGhost() {
		f &^= object.NpcSpiritHealer
	}
	return f
}

func gameObjectDynFlags(e *object.Entity, raw uint32, viewer *object.Entity) uint32 {
	q := e.Relations.QuestEntry
	if q == 0 {
		return raw
	}
	f := raw &^ (object.GODynActivate | object.GODynSparkle)
	if viewer.HasQuest(q) {
		f |= object.GODynActivate | object.GODynSparkle
	}
	return f
}

func hostile(e *object.Entity, viewer *object.Entity) bool {
	team := e.Relations.Team
	return team != 0 && viewer.Team != 0 && team != viewer.Team
}
