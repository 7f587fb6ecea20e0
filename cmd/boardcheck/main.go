// Command boardcheck inspects theme files and the board generator.
//
//	boardcheck themes --dir configs           validate every theme file
//	boardcheck uniformity --size 6 --trials N chi-square report of tile placement
//	boardcheck init --dir configs --name x --symbols "a,b,c,..."
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/wricardo/memory-match/game/config"
	"github.com/wricardo/memory-match/game/engine"
)

// ThemeReport captures the outcome of checking a single theme file.
type ThemeReport struct {
	File         string
	Name         string
	Symbols      int
	Distinct     int
	Duplicates   []string
	MaxBoardSize int
	Err          error
}

// Valid reports whether the theme can be used by a room.
func (r ThemeReport) Valid() bool {
	return r.Err == nil
}

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "boardcheck: %v\n", err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "boardcheck",
		Usage: "Validate themes and the memory-match board generator",
		Commands: []*cli.Command{
			{
				Name:  "themes",
				Usage: "Validate theme files in a config directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: "configs", Usage: "Config directory", Sources: cli.EnvVars("CONFIG_DIR")},
					&cli.BoolFlag{Name: "builtin", Usage: "Also report the built-in themes"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					reports, err := checkThemeDir(cmd.String("dir"))
					if err != nil {
						return err
					}
					if cmd.Bool("builtin") {
						for _, theme := range config.BuiltinThemes() {
							reports = append(reports, checkTheme("(builtin)", theme))
						}
					}
					return printThemeReports(out, reports)
				},
			},
			{
				Name:  "uniformity",
				Usage: "Generate many boards and test tile placement for uniformity",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "size", Value: 4, Usage: "Board size (4, 6 or 8)"},
					&cli.IntFlag{Name: "trials", Value: 20000, Usage: "Boards to generate"},
					&cli.IntFlag{Name: "seed", Value: 1, Usage: "PCG seed"},
					&cli.StringFlag{Name: "mode", Value: string(engine.ModeStandard), Usage: "Mode used for power-up placement"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					r := rand.New(rand.NewPCG(uint64(cmd.Int("seed")), 0x9e3779b97f4a7c15))
					report, err := checkUniformity(int(cmd.Int("size")), int(cmd.Int("trials")), engine.Mode(cmd.String("mode")), r)
					if err != nil {
						return err
					}
					report.Print(out)
					if !report.Uniform() {
						return fmt.Errorf("placement is not uniform (worst chi-square %.1f > %.1f)", report.WorstChiSquare, report.Critical)
					}
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a new theme file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: "configs", Usage: "Config directory", Sources: cli.EnvVars("CONFIG_DIR")},
					&cli.StringFlag{Name: "name", Required: true, Usage: "Theme name"},
					&cli.StringFlag{Name: "description", Usage: "Theme description"},
					&cli.StringFlag{Name: "symbols", Required: true, Usage: "Comma separated symbols"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dir := cmd.String("dir")
					if err := os.MkdirAll(dir, 0755); err != nil {
						return err
					}
					manager, err := config.NewManager(dir)
					if err != nil {
						return err
					}
					theme := engine.Theme{
						Name:        cmd.String("name"),
						Description: cmd.String("description"),
						Symbols:     splitSymbols(cmd.String("symbols")),
					}
					if err := manager.SaveTheme(theme); err != nil {
						return err
					}
					report := checkTheme(filepath.Join(dir, strings.ToLower(theme.Name)+".yaml"), theme)
					fmt.Fprintf(out, "Wrote %s: %d symbols, boards up to %dx%d\n",
						report.File, report.Distinct, report.MaxBoardSize, report.MaxBoardSize)
					return nil
				},
			},
		},
	}
}

func splitSymbols(s string) []string {
	var symbols []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			symbols = append(symbols, part)
		}
	}
	return symbols
}

// checkThemeDir parses every theme file in dir. defaults.yaml is skipped.
func checkThemeDir(dir string) ([]ThemeReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var reports []ThemeReport
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == config.DefaultsFile {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		theme, err := config.ParseThemeFile(path)
		if err != nil {
			reports = append(reports, ThemeReport{File: entry.Name(), Err: fmt.Errorf("parse: %w", err)})
			continue
		}
		reports = append(reports, checkTheme(entry.Name(), theme))
	}
	return reports, nil
}

func checkTheme(file string, theme engine.Theme) ThemeReport {
	report := ThemeReport{
		File:         file,
		Name:         theme.Name,
		Symbols:      len(theme.Symbols),
		Distinct:     config.DistinctSymbols(theme),
		MaxBoardSize: config.MaxBoardSize(theme),
		Err:          config.ValidateTheme(theme),
	}

	seen := make(map[string]int)
	for _, s := range theme.Symbols {
		seen[s]++
		if seen[s] == 2 {
			report.Duplicates = append(report.Duplicates, s)
		}
	}
	return report
}

// printThemeReports writes one block per theme and returns the combined
// validation errors.
func printThemeReports(out io.Writer, reports []ThemeReport) error {
	var errs error
	valid := 0
	for _, r := range reports {
		fmt.Fprintf(out, "\n=== %s ===\n", r.File)
		if r.Name != "" {
			fmt.Fprintf(out, "Name: %s\n", r.Name)
		}
		fmt.Fprintf(out, "Symbols: %d (%d distinct)\n", r.Symbols, r.Distinct)
		if len(r.Duplicates) > 0 {
			fmt.Fprintf(out, "Duplicates ignored: %s\n", strings.Join(r.Duplicates, " "))
		}
		if !r.Valid() {
			fmt.Fprintf(out, "❌ %v\n", r.Err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.File, r.Err))
			continue
		}
		valid++
		fmt.Fprintf(out, "✅ boards up to %dx%d\n", r.MaxBoardSize, r.MaxBoardSize)
	}
	fmt.Fprintf(out, "\n%d/%d themes valid\n", valid, len(reports))
	return errs
}

// UniformityReport summarizes where each symbol landed over many boards.
type UniformityReport struct {
	Size             int
	Trials           int
	Pairs            int
	WorstPosition    int
	WorstChiSquare   float64
	MeanChiSquare    float64
	Critical         float64
	PowerUpsPerBoard float64
	ExpectedPowerUps int
	Kinds            map[engine.PowerUpKind]int
}

// Uniform reports whether every position passed the chi-square test.
func (r UniformityReport) Uniform() bool {
	return r.WorstChiSquare <= r.Critical
}

func (r UniformityReport) Print(out io.Writer) {
	fmt.Fprintf(out, "Board %dx%d, %d pairs, %d trials\n", r.Size, r.Size, r.Pairs, r.Trials)
	fmt.Fprintf(out, "Chi-square per position (df=%d): mean %.2f, worst %.2f at tile %d, critical %.2f\n",
		r.Pairs-1, r.MeanChiSquare, r.WorstChiSquare, r.WorstPosition, r.Critical)
	fmt.Fprintf(out, "Power-ups per board: %.2f (expected %d)\n", r.PowerUpsPerBoard, r.ExpectedPowerUps)

	kinds := make([]string, 0, len(r.Kinds))
	for kind := range r.Kinds {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	total := 0
	for _, n := range r.Kinds {
		total += n
	}
	for _, kind := range kinds {
		n := r.Kinds[engine.PowerUpKind(kind)]
		fmt.Fprintf(out, "  %-10s %6d (%.1f%%)\n", kind, n, 100*float64(n)/float64(total))
	}
	if r.Uniform() {
		fmt.Fprintln(out, "✅ placement looks uniform")
	} else {
		fmt.Fprintln(out, "❌ placement is biased")
	}
}

// checkUniformity generates trials boards from a theme with exactly one
// symbol per pair, so every symbol appears on every board, and runs a
// chi-square goodness of fit test on the symbol found at each position.
func checkUniformity(size, trials int, mode engine.Mode, r *rand.Rand) (UniformityReport, error) {
	if !engine.ValidBoardSize(size) {
		return UniformityReport{}, fmt.Errorf("unsupported board size %d", size)
	}
	if trials <= 0 {
		return UniformityReport{}, fmt.Errorf("trials must be positive")
	}

	pairs := size * size / 2
	theme := engine.Theme{Name: "uniformity"}
	index := make(map[string]int, pairs)
	for i := 0; i < pairs; i++ {
		sym := fmt.Sprintf("s%02d", i)
		theme.Symbols = append(theme.Symbols, sym)
		index[sym] = i
	}

	counts := make([][]int, size*size)
	for i := range counts {
		counts[i] = make([]int, pairs)
	}
	kinds := make(map[engine.PowerUpKind]int)
	powerUps := 0

	spec := engine.BoardSpec{Size: size, Theme: theme, PowerUps: true, Mode: mode}
	for t := 0; t < trials; t++ {
		tiles, err := engine.GenerateBoard(spec, r)
		if err != nil {
			return UniformityReport{}, err
		}
		for pos, tile := range tiles {
			counts[pos][index[tile.Value]]++
			if tile.PowerUp != nil {
				powerUps++
				kinds[tile.PowerUp.Kind]++
			}
		}
	}

	report := UniformityReport{
		Size:             size,
		Trials:           trials,
		Pairs:            pairs,
		Critical:         chiSquareCritical(pairs - 1),
		PowerUpsPerBoard: float64(powerUps) / float64(trials),
		ExpectedPowerUps: int(float64(pairs) * engine.PowerUpFraction(mode)),
		Kinds:            kinds,
	}

	expected := float64(trials) / float64(pairs)
	sum := 0.0
	for pos, row := range counts {
		chi := 0.0
		for _, observed := range row {
			d := float64(observed) - expected
			chi += d * d / expected
		}
		sum += chi
		if chi > report.WorstChiSquare {
			report.WorstChiSquare = chi
			report.WorstPosition = pos
		}
	}
	report.MeanChiSquare = sum / float64(len(counts))
	return report, nil
}

// chiSquareCritical approximates the 99.99% quantile of the chi-square
// distribution with df degrees of freedom (Wilson-Hilferty).
func chiSquareCritical(df int) float64 {
	const z = 3.719
	k := float64(df)
	v := 2 / (9 * k)
	return k * math.Pow(1-v+z*math.Sqrt(v), 3)
}
