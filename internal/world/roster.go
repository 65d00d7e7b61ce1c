package world

// Roster is a world populated with named, aged entities, the data the
// relay pipelines join events with.
type Roster struct {
	World *World
	Names *Column[string]
	Ages  *Column[int]

	// Members lists entities in the order they were added.
	Members []Entity
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	w := New()
	return &Roster{
		World: w,
		Names: NewColumn[string](w),
		Ages:  NewColumn[int](w),
	}
}

// Add spawns an entity carrying name and age.
func (r *Roster) Add(name string, age int) Entity {
	e := r.World.Spawn()
	// e was just spawned, inserts cannot fail
	_ = r.Names.Insert(e, name)
	_ = r.Ages.Insert(e, age)
	r.Members = append(r.Members, e)
	return e
}

// Member returns the i-th added entity.
func (r *Roster) Member(i int) (Entity, bool) {
	if i < 0 || i >= len(r.Members) {
		return Entity{}, false
	}
	return r.Members[i], true
}
