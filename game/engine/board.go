package engine

import (
	"fmt"
	"math/rand/v2"
)

// BoardSizes lists the supported board sizes (tiles per side).
var BoardSizes = []int{4, 6, 8}

// rarityEntry is one row of the power-up rarity table.
type rarityEntry struct {
	Kind   PowerUpKind
	Weight float64
}

// rarityTable weights sum to 1.0.
var rarityTable = []rarityEntry{
	{ExtraTurn, 0.25},
	{Peek, 0.20},
	{RevealOne, 0.20},
	{Swap, 0.15},
	{Freeze, 0.10},
	{Shuffle, 0.10},
}

// BoardSpec describes the board to generate.
type BoardSpec struct {
	Size     int
	Theme    Theme
	PowerUps bool
	Mode     Mode
}

// NewRand returns a randomly seeded source for board generation.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// ValidBoardSize reports whether size is one of the supported sizes.
func ValidBoardSize(size int) bool {
	for _, s := range BoardSizes {
		if s == size {
			return true
		}
	}
	return false
}

// PowerUpFraction returns the share of pairs that carry a power-up in the given mode.
func PowerUpFraction(mode Mode) float64 {
	switch mode {
	case ModePowerFrenzy:
		return 0.6
	case ModeTieBreak:
		return 0
	default:
		return 0.3
	}
}

// GenerateBoard builds a shuffled deck of size² tiles forming size²/2 pairs.
// Tile IDs are assigned by final position, so ID i is the i-th tile on the board.
func GenerateBoard(spec BoardSpec, r *rand.Rand) ([]Tile, error) {
	if !ValidBoardSize(spec.Size) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBoardSize, spec.Size)
	}

	pairs := spec.Size * spec.Size / 2
	symbols := uniqueSymbols(spec.Theme.Symbols)
	if len(symbols) < pairs {
		return nil, fmt.Errorf("%w: theme %q has %d symbols, need %d",
			ErrInsufficientThemeSymbols, spec.Theme.Name, len(symbols), pairs)
	}

	// Pick which symbols appear on this board.
	shuffleStrings(r, symbols)
	symbols = symbols[:pairs]

	tiles := make([]Tile, 0, pairs*2)
	for _, sym := range symbols {
		tiles = append(tiles,
			Tile{Value: sym, Theme: spec.Theme.Name},
			Tile{Value: sym, Theme: spec.Theme.Name},
		)
	}

	if spec.PowerUps {
		attachPowerUps(tiles, spec.Mode, r)
	}

	shuffleTiles(r, tiles)
	for i := range tiles {
		tiles[i].ID = i
	}

	return tiles, nil
}

// GenerateTieBreakBoard builds the single-pair sudden death board.
func GenerateTieBreakBoard(theme Theme, r *rand.Rand) ([]Tile, error) {
	symbols := uniqueSymbols(theme.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: theme %q is empty", ErrInsufficientThemeSymbols, theme.Name)
	}

	sym := symbols[r.IntN(len(symbols))]
	return []Tile{
		{ID: 0, Value: sym, Theme: theme.Name},
		{ID: 1, Value: sym, Theme: theme.Name},
	}, nil
}

// attachPowerUps puts one power-up on one tile of floor(pairs × fraction) randomly chosen pairs.
// tiles must still be laid out pairwise (2k, 2k+1).
func attachPowerUps(tiles []Tile, mode Mode, r *rand.Rand) {
	pairs := len(tiles) / 2
	eligible := int(float64(pairs) * PowerUpFraction(mode))

	for _, pair := range r.Perm(pairs)[:eligible] {
		idx := pair*2 + r.IntN(2)
		p := NewPowerUp(drawPowerUpKind(r))
		tiles[idx].PowerUp = &p
	}
}

// drawPowerUpKind performs one weighted draw over the rarity table.
func drawPowerUpKind(r *rand.Rand) PowerUpKind {
	u := r.Float64()
	acc := 0.0
	for _, entry := range rarityTable {
		acc += entry.Weight
		if u < acc {
			return entry.Kind
		}
	}
	return rarityTable[len(rarityTable)-1].Kind
}

// NewPowerUp returns a single-use power-up of the given kind with its default duration.
func NewPowerUp(kind PowerUpKind) PowerUp {
	p := PowerUp{Kind: kind, UsesRemaining: 1}
	switch kind {
	case Peek:
		d := PeekDurationMs
		p.DurationMs = &d
	case Freeze:
		d := FreezeDurationMs
		p.DurationMs = &d
	}
	return p
}

// shuffleTiles is an in-place Fisher-Yates shuffle.
func shuffleTiles(r *rand.Rand, tiles []Tile) {
	for i := len(tiles) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		tiles[i], tiles[j] = tiles[j], tiles[i]
	}
}

func shuffleStrings(r *rand.Rand, s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// uniqueSymbols returns a copy of symbols with blanks and duplicates removed.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
