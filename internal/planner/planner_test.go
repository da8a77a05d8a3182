package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

func mustDefault(t *testing.T) *Planner {
	t.Helper()
	p, err := New(Default())
	if err != nil {
		t.Fatalf("New(Default()): %v", err)
	}
	return p
}

func TestScenarioStartOfRun(t *testing.T) {
	p := mustDefault(t)
	phase := p.CurrentPhase(0)
	if phase.ID != "phase1" {
		t.Fatalf("CurrentPhase(0) = %s, want phase1", phase.ID)
	}
	task, ok := p.NextTask(phase, world.Situation{})
	if !ok || task.Action != "gather_wood" {
		t.Fatalf("NextTask = %q, %v; want gather_wood", task.Action, ok)
	}
}

func TestScenarioWoodTargetReached(t *testing.T) {
	p := mustDefault(t)
	s := world.NewSituation(world.Snapshot{
		Resources: map[world.Resource]int{world.Wood: 8},
		Elapsed:   40 * time.Second,
	})
	phase := p.CurrentPhase(s.Elapsed())
	if phase.ID != "phase1" {
		t.Fatalf("phase = %s", phase.ID)
	}
	task, ok := p.NextTask(phase, s)
	if !ok || task.Action != "craft_crafting_table" {
		t.Fatalf("NextTask = %q, %v; want craft_crafting_table", task.Action, ok)
	}
}

func TestCurrentPhaseThresholds(t *testing.T) {
	p := mustDefault(t)
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "phase1"},
		{2*time.Minute - time.Nanosecond, "phase1"},
		{2 * time.Minute, "phase2"},
		{5 * time.Minute, "phase3"},
		{8 * time.Minute, "phase4"},
		{10 * time.Minute, "phase5"},
		{12 * time.Minute, "phase6"},
		{14 * time.Minute, "phase7"},
		{15 * time.Minute, "phase7"},
		{3 * time.Hour, "phase7"},
	}
	for _, tc := range cases {
		if got := p.CurrentPhase(tc.elapsed).ID; got != tc.want {
			t.Errorf("CurrentPhase(%s) = %s, want %s", tc.elapsed, got, tc.want)
		}
	}
}

func TestCurrentPhaseMonotonicInTime(t *testing.T) {
	p := mustDefault(t)
	last := -1
	for e := time.Duration(0); e < 20*time.Minute; e += 7 * time.Second {
		idx := p.IndexAt(e)
		if idx < last {
			t.Fatalf("index dropped from %d to %d at %s", last, idx, e)
		}
		last = idx
	}
}

func TestNextTaskStableOnTies(t *testing.T) {
	p, err := New([]Phase{{
		ID: "only", Until: time.Minute,
		Tasks: []Task{
			{Action: "low", Priority: 1, Goal: resource(world.Wood, 1)},
			{Action: "first", Priority: 5, Goal: resource(world.Stone, 1)},
			{Action: "second", Priority: 5, Goal: resource(world.Iron, 1)},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	phase := p.Phase(0)
	order := []string{phase.Tasks[0].Action, phase.Tasks[1].Action, phase.Tasks[2].Action}
	if order[0] != "first" || order[1] != "second" || order[2] != "low" {
		t.Fatalf("task order = %v", order)
	}

	s := world.NewSituation(world.Snapshot{Resources: map[world.Resource]int{world.Stone: 1}})
	if task, _ := p.NextTask(phase, s); task.Action != "second" {
		t.Fatalf("NextTask = %q, want second", task.Action)
	}

	all := world.NewSituation(world.Snapshot{Resources: map[world.Resource]int{
		world.Wood: 1, world.Stone: 1, world.Iron: 1,
	}})
	if _, ok := p.NextTask(phase, all); ok {
		t.Fatal("NextTask returned a task with everything done")
	}
}

func TestNextTaskDoesNotMutateSituation(t *testing.T) {
	p := mustDefault(t)
	s := world.NewSituation(world.Snapshot{Resources: map[world.Resource]int{world.Wood: 3}})
	before := s.Snapshot()
	for i := 0; i < 3; i++ {
		p.NextTask(p.Phase(i), s)
	}
	after := s.Snapshot()
	if before.Resources[world.Wood] != after.Resources[world.Wood] || len(after.Objectives) != 0 {
		t.Fatal("predicates changed the situation")
	}
}

func TestResolveNeverBelowFloor(t *testing.T) {
	p := mustDefault(t)
	rng := rand.New(rand.NewSource(11))
	floor := 0
	for i := 0; i < 500; i++ {
		elapsed := time.Duration(rng.Int63n(int64(20 * time.Minute)))
		s := world.NewSituation(world.Snapshot{
			Resources: map[world.Resource]int{world.Wood: rng.Intn(12), world.Stone: rng.Intn(30)},
		})
		idx := p.Resolve(elapsed, s, floor)
		if idx < floor {
			t.Fatalf("Resolve returned %d below floor %d", idx, floor)
		}
		floor = idx
	}
}

func TestResolveSkipsCompletedPhases(t *testing.T) {
	p := mustDefault(t)
	s := world.NewSituation(world.Snapshot{
		Resources:  map[world.Resource]int{world.Wood: 8, world.Stone: 3},
		Objectives: map[world.Objective]bool{world.HasWoodenTools: true},
	})
	if got := p.Resolve(0, s, 0); got != 1 {
		t.Fatalf("Resolve = %d, want 1 after finishing phase1 early", got)
	}
	// After a reset the floor is zero again and the clock restarts.
	if got := p.Resolve(0, world.Situation{}, 0); got != 0 {
		t.Fatalf("Resolve after reset = %d, want 0", got)
	}
}

func TestNewValidation(t *testing.T) {
	bad := [][]Phase{
		nil,
		{{ID: "", Until: time.Minute}},
		{{ID: "a", Until: time.Minute}, {ID: "a", Until: 2 * time.Minute}},
		{{ID: "a", Until: 2 * time.Minute}, {ID: "b", Until: time.Minute}},
	}
	for i, phases := range bad {
		if _, err := New(phases); err == nil {
			t.Errorf("case %d accepted", i)
		}
	}
}

func TestNewCopiesInput(t *testing.T) {
	phases := Default()
	p, err := New(phases)
	if err != nil {
		t.Fatal(err)
	}
	phases[0].Tasks[0].Action = "mutated"
	if p.Phase(0).Tasks[0].Action != "gather_wood" {
		t.Fatal("planner shares task storage with caller")
	}
}

func TestGoalWithoutConditionsNeverMet(t *testing.T) {
	if (Goal{}).Met(world.NewSituation(world.Snapshot{Items: map[string]int{"x": 1}})) {
		t.Fatal("empty goal met")
	}
}

func TestGoalString(t *testing.T) {
	cases := []struct {
		g    Goal
		want string
	}{
		{Goal{}, "never"},
		{Goal{Resource: world.Wood, Count: 5}, "wood>=5"},
		{Goal{Resource: world.Iron}, "iron>=1"},
		{Goal{Objective: world.EnteredNether, Items: []string{"stone_pickaxe", "iron_pickaxe"}},
			"entered_nether or holding stone_pickaxe|iron_pickaxe"},
	}
	for _, c := range cases {
		if got := c.g.String(); got != c.want {
			t.Errorf("%+v.String() = %q, want %q", c.g, got, c.want)
		}
	}
}
