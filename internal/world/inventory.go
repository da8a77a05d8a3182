package world

import "strings"

// itemResources maps exact item ids onto the resource they count toward.
// Logs are matched by suffix in Tally.
var itemResources = map[string]Resource{
	"cobblestone":       Stone,
	"cobbled_deepslate": Stone,
	"iron_ingot":        Iron,
	"raw_iron":          Iron,
	"diamond":           Diamonds,
	"obsidian":          Obsidian,
	"ender_pearl":       EnderPearls,
	"blaze_rod":         BlazeRods,
	"ender_eye":         EnderEyes,
}

// Item thresholds that mark an inventory-derived objective as reached.
const (
	obsidianForPortal = 10
	eyesForPortal     = 12
)

// Tally folds a raw item inventory into resource counts.
func Tally(items map[string]int) map[Resource]int {
	out := make(map[Resource]int, len(Resources))
	for name, n := range items {
		if n <= 0 {
			continue
		}
		if strings.HasSuffix(name, "_log") || strings.HasSuffix(name, "_stem") {
			out[Wood] += n
			continue
		}
		if r, ok := itemResources[name]; ok {
			out[r] += n
		}
	}
	return out
}

// ItemObjectives derives the objectives that follow directly from what is
// held. Location milestones (nether, stronghold, end, dragon) are not
// derivable from items and are never set here.
func ItemObjectives(items map[string]int) map[Objective]bool {
	counts := Tally(items)
	has := func(name string) bool { return items[name] > 0 }

	out := make(map[Objective]bool)
	set := func(o Objective, ok bool) {
		if ok {
			out[o] = true
		}
	}
	set(HasWoodenTools, has("wooden_pickaxe"))
	set(HasStoneTools, has("stone_pickaxe"))
	set(HasIronTools, has("iron_pickaxe"))
	set(HasDiamonds, counts[Diamonds] > 0)
	set(HasObsidian, counts[Obsidian] >= obsidianForPortal)
	set(HasBlazeRods, counts[BlazeRods] > 0)
	set(HasEnderEyes, counts[EnderEyes] >= eyesForPortal)
	return out
}
