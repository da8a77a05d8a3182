package actuator

import (
	"context"
	"fmt"

	"github.com/talgya/speedrunner/internal/world"
)

var (
	logs       = BlockMatch{Suffixes: []string{"_log", "_stem"}}
	stone      = BlockMatch{Names: []string{"stone", "cobblestone", "deepslate"}}
	ironOre    = BlockMatch{Names: []string{"iron_ore", "deepslate_iron_ore"}}
	diamondOre = BlockMatch{Names: []string{"diamond_ore", "deepslate_diamond_ore"}}
	lava       = BlockMatch{Names: []string{"lava"}}
	obsidian   = BlockMatch{Names: []string{"obsidian"}}
	portal     = BlockMatch{Names: []string{"nether_portal"}}
	fortress   = BlockMatch{Names: []string{"nether_bricks", "nether_brick_fence"}}
	frame      = BlockMatch{Names: []string{"end_portal_frame"}}
	endPortal  = BlockMatch{Names: []string{"end_portal"}}
)

// portalFrame is the obsidian outline of a nether portal relative to its
// bottom-left corner.
var portalFrame = []world.Vec3{
	{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 0, Y: 3},
	{X: 1, Y: 0}, {X: 1, Y: 3},
	{X: 2, Y: 0}, {X: 2, Y: 3},
	{X: 3, Y: 0}, {X: 3, Y: 1}, {X: 3, Y: 2}, {X: 3, Y: 3},
}

func (e *Executor) table() map[string]handler {
	mine := func(m BlockMatch, tool string) handler {
		return func(ctx context.Context, _ int) ([]world.Objective, error) {
			return nil, e.mineNearest(ctx, m, tool)
		}
	}
	craft := func(item string) handler {
		return func(ctx context.Context, _ int) ([]world.Objective, error) {
			return nil, e.craft(ctx, item, 1)
		}
	}

	return map[string]handler{
		"explore": e.explore,

		"gather_wood":   mine(logs, "axe"),
		"find_stone":    mine(stone, "pickaxe"),
		"mine_stone":    mine(stone, "pickaxe"),
		"find_iron":     mine(ironOre, "pickaxe"),
		"mine_iron":     mine(ironOre, "pickaxe"),
		"find_diamonds": e.mineDiamonds,
		"mine_diamonds": e.mineDiamonds,

		"craft_crafting_table":  craft("crafting_table"),
		"craft_wooden_pickaxe":  craft("wooden_pickaxe"),
		"craft_stone_pickaxe":   craft("stone_pickaxe"),
		"craft_stone_sword":     craft("stone_sword"),
		"craft_iron_pickaxe":    craft("iron_pickaxe"),
		"craft_diamond_pickaxe": craft("diamond_pickaxe"),
		"craft_bucket":          craft("bucket"),
		"craft_ender_eyes":      craft("ender_eye"),
		"craft_tools":           e.craftNextTool,
		"craft_item":            e.craftNextItem,

		"find_lava":           e.findLava,
		"create_obsidian":     e.createObsidian,
		"build_nether_portal": e.buildPortal,
		"enter_nether":        e.enterPortal,
		"return_overworld":    e.enterPortal,

		"find_fortress": e.findFortress,
		"find_blaze":    e.huntBlaze,
		"kill_blaze":    e.huntBlaze,
		"get_blaze_rod": e.huntBlaze,
		"find_enderman": e.findEnderman,
		"kill_enderman": e.hunt("enderman"),

		"use_ender_eye":       e.throwEye,
		"find_stronghold":     e.findStronghold,
		"activate_end_portal": e.activateEndPortal,
		"enter_end":           e.enterEnd,

		"locate_dragon":    e.locateDragon,
		"destroy_crystals": e.hunt("end_crystal"),
		"attack_dragon":    e.attackDragon,
		"kill_dragon":      e.attackDragon,
	}
}

// mineDiamonds mines a diamond ore in range, or heads down to diamond
// level to look for one.
func (e *Executor) mineDiamonds(ctx context.Context, _ int) ([]world.Objective, error) {
	err := e.mineNearest(ctx, diamondOre, "pickaxe")
	if !isNotFound(err) {
		return nil, err
	}
	pos, perr := e.act.Position(ctx)
	if perr != nil {
		return nil, perr
	}
	if pos.Y <= e.cfg.DiamondLevel {
		return nil, err
	}
	down := world.Vec3{X: pos.X, Y: e.cfg.DiamondLevel, Z: pos.Z}
	return nil, e.act.NavigateTo(ctx, down, e.cfg.Reach)
}

// craftNextTool crafts the lowest pickaxe tier not yet held.
func (e *Executor) craftNextTool(ctx context.Context, _ int) ([]world.Objective, error) {
	inv, err := e.act.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(tiers) - 1; i >= 0; i-- {
		tool := tiers[i] + "_pickaxe"
		if inv[tool] > 0 {
			continue
		}
		return nil, e.craft(ctx, tool, 1)
	}
	return nil, fmt.Errorf("%w: every pickaxe tier already held", ErrActuation)
}

// craftNextItem crafts the next non-tool item the run needs.
func (e *Executor) craftNextItem(ctx context.Context, _ int) ([]world.Objective, error) {
	inv, err := e.act.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case inv["crafting_table"] == 0:
		return nil, e.craft(ctx, "crafting_table", 1)
	case inv["bucket"] == 0 && inv["water_bucket"] == 0 && inv["lava_bucket"] == 0 && inv["iron_ingot"] >= 3:
		return nil, e.craft(ctx, "bucket", 1)
	case inv["flint_and_steel"] == 0 && inv["flint"] > 0 && inv["iron_ingot"] > 0:
		return nil, e.craft(ctx, "flint_and_steel", 1)
	case inv["ender_pearl"] > 0 && (inv["blaze_rod"] > 0 || inv["blaze_powder"] > 0):
		return nil, e.craft(ctx, "ender_eye", 1)
	}
	return nil, fmt.Errorf("%w: nothing to craft", ErrActuation)
}

func (e *Executor) findLava(ctx context.Context, _ int) ([]world.Objective, error) {
	_, err := e.goTo(ctx, lava, e.cfg.Reach)
	return nil, err
}

// createObsidian mines obsidian in range, otherwise pours water on lava to
// make some.
func (e *Executor) createObsidian(ctx context.Context, _ int) ([]world.Objective, error) {
	err := e.mineNearest(ctx, obsidian, "pickaxe")
	if !isNotFound(err) {
		return nil, err
	}
	if _, err := e.goTo(ctx, lava, e.cfg.Reach); err != nil {
		return nil, err
	}
	if err := e.act.Equip(ctx, "water_bucket"); err != nil {
		return nil, err
	}
	return nil, e.act.Use(ctx, "water_bucket")
}

// buildPortal places the obsidian frame beside the agent and lights it.
func (e *Executor) buildPortal(ctx context.Context, _ int) ([]world.Objective, error) {
	pos, err := e.act.Position(ctx)
	if err != nil {
		return nil, err
	}
	origin := pos.Add(world.Vec3{X: 2})
	for _, off := range portalFrame {
		if err := e.act.Place(ctx, "obsidian", origin.Add(off)); err != nil {
			return nil, err
		}
	}
	if err := e.act.Equip(ctx, "flint_and_steel"); err != nil {
		return nil, err
	}
	return nil, e.act.Use(ctx, "flint_and_steel")
}

// enterPortal walks into the nearest nether portal. The dimension change
// itself is observed, not reported.
func (e *Executor) enterPortal(ctx context.Context, _ int) ([]world.Objective, error) {
	_, err := e.goTo(ctx, portal, 0)
	return nil, err
}

func (e *Executor) findFortress(ctx context.Context, _ int) ([]world.Objective, error) {
	_, err := e.goTo(ctx, fortress, e.cfg.Reach)
	return nil, err
}

// huntBlaze fights a blaze, heading for fortress bricks when none is in
// range.
func (e *Executor) huntBlaze(ctx context.Context, _ int) ([]world.Objective, error) {
	_, err := e.fight(ctx, "blaze")
	if isNotFound(err) {
		_, err = e.goTo(ctx, fortress, e.cfg.Reach)
	}
	return nil, err
}

func (e *Executor) findEnderman(ctx context.Context, _ int) ([]world.Objective, error) {
	ent, err := e.act.FindEntity(ctx, EntityMatch{Names: []string{"enderman"}}, e.cfg.SearchRadius)
	if err != nil {
		return nil, err
	}
	return nil, e.act.NavigateTo(ctx, ent.Position, e.cfg.Reach*2)
}

func (e *Executor) hunt(names ...string) handler {
	return func(ctx context.Context, _ int) ([]world.Objective, error) {
		_, err := e.fight(ctx, names...)
		return nil, err
	}
}

func (e *Executor) throwEye(ctx context.Context, _ int) ([]world.Objective, error) {
	if err := e.act.Equip(ctx, "ender_eye"); err != nil {
		return nil, err
	}
	return nil, e.act.Use(ctx, "ender_eye")
}

// findStronghold walks to an end portal frame in range. With none in range
// it throws an eye to get a bearing and reports the miss.
func (e *Executor) findStronghold(ctx context.Context, target int) ([]world.Objective, error) {
	_, err := e.goTo(ctx, frame, e.cfg.Reach)
	if err == nil {
		return []world.Objective{world.FoundStronghold}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	inv, ierr := e.act.Inventory(ctx)
	if ierr == nil && inv["ender_eye"] > 0 {
		if _, terr := e.throwEye(ctx, target); terr != nil {
			return nil, terr
		}
	}
	return nil, err
}

// activateEndPortal fills one frame slot with an eye.
func (e *Executor) activateEndPortal(ctx context.Context, _ int) ([]world.Objective, error) {
	blk, err := e.goTo(ctx, frame, e.cfg.Reach)
	if err != nil {
		return nil, err
	}
	return []world.Objective{world.FoundStronghold}, e.act.Place(ctx, "ender_eye", blk.Position)
}

func (e *Executor) enterEnd(ctx context.Context, _ int) ([]world.Objective, error) {
	_, err := e.goTo(ctx, endPortal, 0)
	if err != nil {
		return nil, err
	}
	return []world.Objective{world.FoundStronghold}, nil
}

func (e *Executor) locateDragon(ctx context.Context, _ int) ([]world.Objective, error) {
	ent, err := e.act.FindEntity(ctx, EntityMatch{Names: []string{"ender_dragon"}}, e.cfg.SearchRadius*4)
	if err != nil {
		return nil, err
	}
	return nil, e.act.NavigateTo(ctx, ent.Position, e.cfg.Reach*4)
}

func (e *Executor) attackDragon(ctx context.Context, _ int) ([]world.Objective, error) {
	res, err := e.fight(ctx, "ender_dragon")
	if err != nil {
		return nil, err
	}
	if res.Killed {
		return []world.Objective{world.KilledDragon}, nil
	}
	return nil, nil
}
