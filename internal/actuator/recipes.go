package actuator

import (
	"sort"
	"strings"
)

type ingredient struct {
	item string
	n    int
}

type recipe struct {
	yield int
	needs []ingredient
	table bool // needs a crafting table
}

// planks is any *_planks item; logs of each wood type craft into their own.
const planks = "planks"

var recipes = map[string]recipe{
	planks:            {yield: 4},
	"stick":           {yield: 4, needs: []ingredient{{planks, 2}}},
	"crafting_table":  {yield: 1, needs: []ingredient{{planks, 4}}},
	"wooden_pickaxe":  {yield: 1, needs: []ingredient{{planks, 3}, {"stick", 2}}, table: true},
	"stone_pickaxe":   {yield: 1, needs: []ingredient{{"cobblestone", 3}, {"stick", 2}}, table: true},
	"stone_sword":     {yield: 1, needs: []ingredient{{"cobblestone", 2}, {"stick", 1}}, table: true},
	"iron_pickaxe":    {yield: 1, needs: []ingredient{{"iron_ingot", 3}, {"stick", 2}}, table: true},
	"diamond_pickaxe": {yield: 1, needs: []ingredient{{"diamond", 3}, {"stick", 2}}, table: true},
	"bucket":          {yield: 1, needs: []ingredient{{"iron_ingot", 3}}, table: true},
	"flint_and_steel": {yield: 1, needs: []ingredient{{"iron_ingot", 1}, {"flint", 1}}},
	"blaze_powder":    {yield: 2, needs: []ingredient{{"blaze_rod", 1}}},
	"ender_eye":       {yield: 1, needs: []ingredient{{"blaze_powder", 1}, {"ender_pearl", 1}}},
}

type craftStep struct {
	item  string
	count int
}

// plan lists the craft calls needed to make count batches of item from inv,
// intermediates first. Missing raw materials are not checked; the craft
// call for the step that needs them fails.
func plan(item string, count int, inv map[string]int) []craftStep {
	have := make(map[string]int, len(inv)+1)
	for k, v := range inv {
		have[k] = v
		if strings.HasSuffix(k, "_planks") {
			have[planks] += v
		}
	}
	log := firstLog(inv)

	var steps []craftStep
	var need func(item string, n int, force bool)
	need = func(item string, n int, force bool) {
		if !force && have[item] >= n {
			have[item] -= n
			return
		}
		r, ok := recipes[item]
		if !ok {
			return
		}
		missing := n
		if !force {
			missing = n - have[item]
		}
		batches := (missing + r.yield - 1) / r.yield

		if r.table && have["crafting_table"] == 0 {
			need("crafting_table", 1, false)
			have["crafting_table"] = 1
		}
		for _, ing := range r.needs {
			need(ing.item, ing.n*batches, false)
		}

		name := item
		if item == planks {
			name = strings.TrimSuffix(log, "_log") + "_planks"
		}
		steps = append(steps, craftStep{item: name, count: batches})
		if !force {
			have[item] += batches*r.yield - n
		}
	}
	need(item, count, true)
	return steps
}

// firstLog picks the log type to turn into planks, oak when none is held.
func firstLog(inv map[string]int) string {
	var logs []string
	for k, v := range inv {
		if v > 0 && strings.HasSuffix(k, "_log") {
			logs = append(logs, k)
		}
	}
	if len(logs) == 0 {
		return "oak_log"
	}
	sort.Strings(logs)
	return logs[0]
}

// tiers lists tool materials from best to worst.
var tiers = []string{"diamond", "iron", "stone", "wooden"}

// bestHeld returns the best held tool of kind ("pickaxe", "sword"), or "".
func bestHeld(inv map[string]int, kind string) string {
	for _, t := range tiers {
		if name := t + "_" + kind; inv[name] > 0 {
			return name
		}
	}
	return ""
}
