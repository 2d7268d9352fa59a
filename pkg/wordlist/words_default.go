package wordlist

// Embedded fallback lists so the engine can run without external data files.
// Production deployments load the full frequency-filtered dictionaries via
// FromFiles; these cover local runs and tests.

var defaultAnswerWords = []string{
	"ABOUT", "ALERT", "AMBER", "APPLE", "ARROW", "AUDIO", "BADGE", "BAKER",
	"BEACH", "BERRY", "BLAZE", "BOARD", "BRAVE", "BREAD", "BRICK", "BRIDE",
	"CABIN", "CANDY", "CHAIR", "CHARM", "CHESS", "CLOUD", "COAST", "CORAL",
	"CRANE", "CROWN", "DAISY", "DANCE", "DELTA", "DREAM", "DRIFT", "EAGLE",
	"EARTH", "EMBER", "FABLE", "FAITH", "FIELD", "FLAME", "FLOUR", "FORGE",
	"FROST", "GHOST", "GLIDE", "GRAPE", "GRASS", "GROVE", "HEART", "HONEY",
	"HOUSE", "IVORY", "JELLY", "JOKER", "JUICE", "KNIFE", "LEMON", "LIGHT",
	"LUNAR", "MANGO", "MAPLE", "MARSH", "MIRTH", "MONEY", "MUSIC", "NORTH",
	"OCEAN", "OLIVE", "ONION", "ORBIT", "PEACH", "PEARL", "PIANO", "PLANT",
	"PRIZE", "QUART", "QUEEN", "RIVER", "ROBIN", "ROUND", "ROYAL", "SALSA",
	"SHEEP", "SHELL", "SHINE", "SLATE", "SMILE", "SNAKE", "SOLAR", "SPICE",
	"STONE", "STORM", "SUGAR", "SWEEP", "TIGER", "TOKEN", "TORCH", "TRAIL",
	"TRUST", "VAULT", "VIVID", "WAGON", "WATER", "WHALE", "WHEAT", "WORLD",
}

var defaultGuessWords = append([]string{
	"ABIDE", "ACORN", "ADMIT", "AGENT", "ALIGN", "ALLOW", "ANGLE", "ANKLE",
	"AROSE", "ASIDE", "AUGHT", "AWAIT", "BASIC", "BATON", "BEGAN", "BLEND",
	"BLUNT", "BONUS", "BRINE", "BURNT", "CARGO", "CEDAR", "CHANT", "CIDER",
	"CIVIC", "CLASP", "CLERK", "CLIMB", "CRISP", "CURVE", "DEBIT", "DECOY",
	"DOUBT", "DOZEN", "DWELL", "ELBOW", "ENACT", "EQUIP", "EXACT", "FANCY",
	"FEAST", "FJORD", "FLINT", "FUDGE", "GAUGE", "GIVEN", "GLYPH", "GRIND",
	"GUESS", "HASTE", "HOIST", "INDEX", "INGOT", "JAUNT", "KAYAK", "KIOSK",
	"LATCH", "LEDGE", "LOGIC", "LYMPH", "MEDAL", "MERGE", "MOUNT", "NYMPH",
	"OPERA", "OUGHT", "PIVOT", "PLUMB", "PRISM", "QUERY", "QUILT", "RALLY",
	"RIDGE", "SCALE", "SHARD", "SIEGE", "SKULL", "SPELT", "SPRIG", "SQUAD",
	"TEMPO", "THUMB", "TWEED", "UNZIP", "USHER", "VAPOR", "VERGE", "WALTZ",
	"WEDGE", "WHISK", "XENON", "YACHT", "YIELD", "ZESTY",
}, defaultAnswerWords...)
