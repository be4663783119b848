package object

// FieldType selects the payload encoding of a field.
type FieldType uint8

const (
	TypeInt   FieldType = iota // uint32, 4 bytes
	TypeFloat                  // float32 bits, 4 bytes
	TypeFlags                  // uint32 bitset, 4 bytes
	TypeGUID                   // packed GUID
)

// Visibility restricts which observers may receive a field at all.
type Visibility uint8

const (
	VisPublic Visibility = iota
	VisOwner             // the entity itself or its owner only
)

// FieldDef describes one slot of a kind's schema.
type FieldDef struct {
	Name string
	Type FieldType
	Vis  Visibility
	// Conditional fields are projected per observer before encoding.
	Conditional bool
}

// Object block, shared by every kind.
const (
	ObjectEntry = iota
	ObjectScale
	ObjectPosX
	ObjectPosY
	ObjectPosZ
	ObjectFacing
	ObjectEnd
)

// Unit block (players and creatures).
const (
	UnitHealth = ObjectEnd + iota
	UnitMaxHealth
	UnitLevel
	UnitFaction
	UnitDisplayID
	UnitFlags
	UnitDynamicFlags
	UnitNpcFlags
	UnitTarget
	UnitOwner
	UnitSpeed
	UnitEnd
)

// Player block.
const (
	PlayerClass = UnitEnd + iota
	PlayerFlags
	PlayerXP
	PlayerMoney
	PlayerGroup
	PlayerEnd
)

// Creature block.
const (
	CreatureRank = UnitEnd + iota
	CreatureEnd
)

// GameObject block.
const (
	GameObjectDisplayID = ObjectEnd + iota
	GameObjectFlags
	GameObjectDynFlags
	GameObjectState
	GameObjectFaction
	GameObjectEnd
)

// Corpse block.
const (
	CorpseOwner = ObjectEnd + iota
	CorpseDisplayID
	CorpseFlags
	CorpseEnd
)

// UnitDynamicFlags bits.
const (
	DynLootable uint32 = 1 << iota
	DynTapped
	DynTappedByObserver
	DynTrackUnit
	DynDead
)

// UnitNpcFlags bits.
const (
	NpcGossip uint32 = 1 << iota
	NpcQuestGiver
	NpcVendor
	NpcTrainer
	NpcSpiritHealer
	NpcFlightMaster
)

// NpcInteractionMask is every flag that implies a client-side interaction.
const NpcInteractionMask = NpcGossip | NpcQuestGiver | NpcVendor | NpcTrainer | NpcSpiritHealer | NpcFlightMaster

// PlayerFlags bits.
const (
	PlayerGhost uint32 = 1 << iota
	PlayerAFK
	PlayerPvP
)

// GameObjectDynFlags bits.
const (
	GODynActivate uint32 = 1 << iota
	GODynSparkle
)

var objectBlock = []FieldDef{
	{Name: "entry", Type: TypeInt},
	{Name: "scale", Type: TypeFloat},
	{Name: "pos_x", Type: TypeFloat},
	{Name: "pos_y", Type: TypeFloat},
	{Name: "pos_z", Type: TypeFloat},
	{Name: "facing", Type: TypeFloat},
}

var unitBlock = []FieldDef{
	{Name: "health", Type: TypeInt},
	{Name: "max_health", Type: TypeInt},
	{Name: "level", Type: TypeInt},
	{Name: "faction", Type: TypeInt},
	{Name: "display_id", Type: TypeInt},
	{Name: "unit_flags", Type: TypeFlags},
	{Name: "dynamic_flags", Type: TypeFlags, Conditional: true},
	{Name: "npc_flags", Type: TypeFlags, Conditional: true},
	{Name: "target", Type: TypeGUID},
	{Name: "owner", Type: TypeGUID},
	{Name: "speed", Type: TypeFloat},
}

var playerBlock = []FieldDef{
	{Name: "class", Type: TypeInt},
	{Name: "player_flags", Type: TypeFlags},
	{Name: "xp", Type: TypeInt, Vis: VisOwner},
	{Name: "money", Type: TypeInt, Vis: VisOwner},
	{Name: "group", Type: TypeInt, Vis: VisOwner},
}

var creatureBlock = []FieldDef{
	{Name: "rank", Type: TypeInt},
}

var gameObjectBlock = []FieldDef{
	{Name: "display_id", Type: TypeInt},
	{Name: "go_flags", Type: TypeFlags},
	{Name: "go_dynamic_flags", Type: TypeFlags, Conditional: true},
	{Name: "go_state", Type: TypeInt},
	{Name: "go_faction", Type: TypeInt},
}

var corpseBlock = []FieldDef{
	{Name: "owner", Type: TypeGUID},
	{Name: "display_id", Type: TypeInt},
	{Name: "corpse_flags", Type: TypeFlags},
}

// Schema is the fixed field layout of one entity kind.
type Schema struct {
	Kind   Kind
	Fields []FieldDef
	// Conditional lists the indices of observer-conditional fields in order.
	Conditional []int
	// condSlot maps a field index to its position in Conditional, or -1.
	condSlot []int
}

func newSchema(k Kind, blocks ...[]FieldDef) *Schema {
	s := &Schema{Kind: k}
	for _, b := range blocks {
		s.Fields = append(s.Fields, b...)
	}
	s.condSlot = make([]int, len(s.Fields))
	for i, f := range s.Fields {
		s.condSlot[i] = -1
		if f.Conditional {
			s.condSlot[i] = len(s.Conditional)
			s.Conditional = append(s.Conditional, i)
		}
	}
	return s
}

// Len is the number of field slots.
func (s *Schema) Len() int { return len(s.Fields) }

// ConditionalSlot returns the projection slot of field i, or -1.
func (s *Schema) ConditionalSlot(i int) int { return s.condSlot[i] }

var schemas = [KindCount]*Schema{
	KindPlayer:     newSchema(KindPlayer, objectBlock, unitBlock, playerBlock),
	KindCreature:   newSchema(KindCreature, objectBlock, unitBlock, creatureBlock),
	KindGameObject: newSchema(KindGameObject, objectBlock, gameObjectBlock),
	KindCorpse:     newSchema(KindCorpse, objectBlock, corpseBlock),
}

// SchemaOf returns the schema for k. Panics on an undeclared kind.
func SchemaOf(k Kind) *Schema {
	if !k.Valid() {
		panic("object: schema for invalid kind " + k.String())
	}
	return schemas[k]
}
