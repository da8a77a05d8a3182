package planner

import (
	"time"

	"github.com/talgya/speedrunner/internal/world"
)

func resource(r world.Resource, n int) Goal { return Goal{Resource: r, Count: n} }
func objective(o world.Objective) Goal     { return Goal{Objective: o} }
func items(names ...string) Goal           { return Goal{Items: names} }

// Default returns the seven-phase speedrun schedule.
func Default() []Phase {
	return []Phase{
		{
			ID: "phase1", Name: "Initial Setup", Until: 2 * time.Minute,
			Tasks: []Task{
				{Action: "gather_wood", Target: 8, Priority: 10, Goal: resource(world.Wood, 8)},
				{Action: "craft_crafting_table", Priority: 9, Goal: Goal{Objective: world.HasWoodenTools, Items: []string{"crafting_table"}}},
				{Action: "craft_wooden_pickaxe", Priority: 8, Goal: objective(world.HasWoodenTools)},
				{Action: "find_stone", Priority: 7, Goal: resource(world.Stone, 1)},
			},
		},
		{
			ID: "phase2", Name: "Stone Tools", Until: 4 * time.Minute,
			Tasks: []Task{
				{Action: "mine_stone", Target: 20, Priority: 10, Goal: resource(world.Stone, 20)},
				{Action: "craft_stone_pickaxe", Priority: 9, Goal: objective(world.HasStoneTools)},
				{Action: "craft_stone_sword", Priority: 8, Goal: items("stone_sword", "iron_sword", "diamond_sword")},
				{Action: "find_iron", Priority: 7, Goal: resource(world.Iron, 1)},
			},
		},
		{
			ID: "phase3", Name: "Iron Tools", Until: 6 * time.Minute,
			Tasks: []Task{
				{Action: "mine_iron", Target: 12, Priority: 10, Goal: resource(world.Iron, 12)},
				{Action: "craft_iron_pickaxe", Priority: 9, Goal: objective(world.HasIronTools)},
				{Action: "craft_bucket", Priority: 8, Goal: items("bucket", "water_bucket", "lava_bucket")},
				{Action: "find_diamonds", Priority: 7, Goal: resource(world.Diamonds, 1)},
			},
		},
		{
			ID: "phase4", Name: "Diamonds & Nether Prep", Until: 9 * time.Minute,
			Tasks: []Task{
				{Action: "mine_diamonds", Target: 3, Priority: 10, Goal: resource(world.Diamonds, 3)},
				{Action: "craft_diamond_pickaxe", Priority: 9, Goal: items("diamond_pickaxe")},
				{Action: "find_lava", Priority: 8, Goal: Goal{Objective: world.HasObsidian, Items: []string{"lava_bucket"}}},
				{Action: "create_obsidian", Target: 10, Priority: 7, Goal: resource(world.Obsidian, 10)},
				{Action: "build_nether_portal", Priority: 6, Goal: objective(world.EnteredNether)},
			},
		},
		{
			ID: "phase5", Name: "Nether", Until: 11 * time.Minute,
			Tasks: []Task{
				{Action: "enter_nether", Priority: 10, Goal: objective(world.EnteredNether)},
				{Action: "find_fortress", Priority: 9, Goal: objective(world.HasBlazeRods)},
				{Action: "kill_blaze", Target: 1, Priority: 8, Goal: resource(world.BlazeRods, 1)},
				{Action: "get_blaze_rod", Target: 6, Priority: 7, Goal: resource(world.BlazeRods, 6)},
				{Action: "find_enderman", Priority: 6, Goal: resource(world.EnderPearls, 1)},
				{Action: "kill_enderman", Target: 12, Priority: 5, Goal: resource(world.EnderPearls, 12)},
				{Action: "craft_ender_eyes", Target: 12, Priority: 4, Goal: resource(world.EnderEyes, 12)},
			},
		},
		{
			ID: "phase6", Name: "Stronghold & End", Until: 13 * time.Minute,
			Tasks: []Task{
				{Action: "return_overworld", Priority: 10, Goal: objective(world.FoundStronghold)},
				{Action: "use_ender_eye", Priority: 9, Goal: objective(world.FoundStronghold)},
				{Action: "find_stronghold", Priority: 8, Goal: objective(world.FoundStronghold)},
				{Action: "activate_end_portal", Priority: 7, Goal: objective(world.EnteredEnd)},
				{Action: "enter_end", Priority: 6, Goal: objective(world.EnteredEnd)},
			},
		},
		{
			ID: "phase7", Name: "Ender Dragon", Until: 15 * time.Minute,
			Tasks: []Task{
				{Action: "locate_dragon", Priority: 10, Goal: objective(world.KilledDragon)},
				{Action: "destroy_crystals", Priority: 9, Goal: objective(world.KilledDragon)},
				{Action: "attack_dragon", Priority: 8, Goal: objective(world.KilledDragon)},
				{Action: "kill_dragon", Priority: 7, Goal: objective(world.KilledDragon)},
			},
		},
	}
}
