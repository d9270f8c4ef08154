// Agent spawning: places the initial crew around the camp with seeded
// ids, names and headings.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/timberline/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnCrew creates count agents spread evenly on a circle of the given
// radius around center, each facing outward toward the forest.
func (s *Spawner) SpawnCrew(count int, center world.Vec3, radius float64, cfg Config) []*Agent {
	crew := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		angle := float64(i) / float64(count) * 2 * math.Pi
		pos := world.Vec3{
			X: center.X + math.Sin(angle)*radius,
			Y: center.Y,
			Z: center.Z + math.Cos(angle)*radius,
		}
		a := s.Spawn(pos, cfg)
		a.Heading = world.WrapAngle(angle)
		crew = append(crew, a)
	}
	return crew
}

// Spawn creates a single agent at pos in the Searching state.
func (s *Spawner) Spawn(pos world.Vec3, cfg Config) *Agent {
	id := s.nextID
	s.nextID++
	return &Agent{
		ID:       id,
		Name:     s.generateName(),
		Position: pos,
		Home:     pos,
		State:    StateSearching,
		Config:   cfg,
		Alive:    true,
	}
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var firstNames = []string{
	"Aldric", "Astrid", "Bram", "Brenna", "Cedric", "Calla", "Doran",
	"Daria", "Erik", "Elara", "Finn", "Freya", "Gareth", "Greta",
	"Halvard", "Hilde", "Ivar", "Inga", "Jasper", "Juno", "Leif",
	"Lena", "Magnus", "Mira", "Oswin", "Olwen", "Rowan", "Runa",
	"Stellan", "Senna", "Ulric", "Una", "Wren", "Willa", "Yorick",
}

var lastNames = []string{
	"Thornwood", "Blackwood", "Ashford", "Ironhand", "Greenvale",
	"Millward", "Oakenshield", "Marshwood", "Holloway", "Thatcher",
	"Sawyer", "Woodward", "Birchall", "Fellows", "Hewer", "Cooper",
	"Carver", "Alderman", "Briar", "Harper", "Mercer", "Ward",
}
