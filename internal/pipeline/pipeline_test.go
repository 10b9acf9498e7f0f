package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/consolidate"
	"github.com/tphakala/corpusprep/internal/datastore"
	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
	"github.com/tphakala/corpusprep/internal/split"
	"github.com/tphakala/corpusprep/internal/taxonomy"
)

func testSettings() *conf.Settings {
	return &conf.Settings{
		Seed: split.DefaultSeed,
		Split: conf.SplitSettings{
			Ratio:       split.DefaultRatio,
			Policy:      string(split.GuaranteeNonEmptyValidation),
			Mode:        string(fsutil.ModeCopy),
			SmallGroups: string(split.SmallGroupSkip),
			TrainDir:    split.DefaultTrainDir,
			ValDir:      split.DefaultValDir,
		},
		Reorganize: conf.ReorganizeSettings{
			Splits:  taxonomy.DefaultSplits,
			GroupBy: "family",
			Mode:    string(fsutil.ModeCopy),
		},
		Consolidate: conf.ConsolidateSettings{
			MinSupport: 2,
			RareName:   consolidate.DefaultRareName,
		},
		Family: conf.FamilySettings{Policy: string(split.Truncate)},
	}
}

func testEnv(settings *conf.Settings, fsys afero.Fs) (*Env, *bytes.Buffer) {
	var out bytes.Buffer
	return &Env{Settings: settings, RunID: uuid.NewString(), Fs: fsys, Out: &out}, &out
}

func writeFiles(t *testing.T, fsys afero.Fs, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func images(prefix string, n int) map[string]string {
	files := make(map[string]string, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("%s_%03d.jpg", prefix, i)
		files[name] = name
	}
	return files
}

func countImages(t *testing.T, fsys afero.Fs, dir string) int {
	t.Helper()
	if !fsutil.DirExists(fsys, dir) {
		return 0
	}
	names, err := fsutil.ListImages(fsys, dir)
	require.NoError(t, err)
	return len(names)
}

func openLedger(t *testing.T, path string) *datastore.Store {
	t.Helper()
	store, err := datastore.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSplitIsReproducible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/corpus/Carcharhinidae", images("CAR", 10))
	writeFiles(t, fsys, "/corpus/Mitsukurinidae", images("MIT", 1))

	settings := testSettings()
	settings.Split.CorpusRoot = "/corpus"
	settings.Ledger = conf.LedgerSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "ledger.db")}

	var runIDs []string
	for _, output := range []string{"/out/first", "/out/second"} {
		s := *settings
		s.Split.OutputRoot = output
		env, out := testEnv(&s, fsys)
		require.NoError(t, Split(ctx, env))
		assert.Contains(t, out.String(), "Split (copy)")
		runIDs = append(runIDs, env.RunID)

		assert.Equal(t, 8, countImages(t, fsys, filepath.Join(output, "train", "Carcharhinidae")))
		assert.Equal(t, 2, countImages(t, fsys, filepath.Join(output, "val", "Carcharhinidae")))
		assert.Zero(t, countImages(t, fsys, filepath.Join(output, "train", "Mitsukurinidae")),
			"single image groups are skipped")
	}

	store := openLedger(t, settings.Ledger.Path)
	diff, err := store.CompareSplits(ctx, runIDs[0], runIDs[1])
	require.NoError(t, err)
	assert.True(t, diff.Identical(), "same seed and corpus must give the same split")

	run, err := store.GetRun(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(split.DefaultSeed), run.SeedValue())
	assert.Equal(t, "/out/first", run.Output)
	assert.Len(t, run.Assignments, 10)
}

func TestSplitDryRunLeavesCorpusUntouched(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/corpus/Sphyrnidae", images("SPL", 5))

	settings := testSettings()
	settings.Split.CorpusRoot = "/corpus"
	settings.Split.DryRun = true
	settings.Report = "/reports/split.yaml"
	env, _ := testEnv(settings, fsys)
	require.NoError(t, Split(context.Background(), env))

	assert.False(t, fsutil.DirExists(fsys, "/corpus/train"))
	data, err := afero.ReadFile(fsys, "/reports/split.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "train_total: 4")
	assert.Contains(t, string(data), "run_id: "+env.RunID)
}

func TestSplitRequiresCorpusRoot(t *testing.T) {
	t.Parallel()

	env, out := testEnv(testSettings(), afero.NewMemMapFs())
	err := Split(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Empty(t, out.String())
}

func familyFixture(t *testing.T, fsys afero.Fs) {
	t.Helper()
	for _, dir := range []string{"/species/train/CAR-Carcharhinus-limbatus", "/species/val/SPL-Sphyrna-lewini"} {
		require.NoError(t, fsys.MkdirAll(dir, 0o755))
	}
	writeFiles(t, fsys, "/ref", map[string]string{
		"families.csv": "species_scientific_name,Family\nCarcharhinus_limbatus,Carcharhinidae\nSphyrna_lewini,Sphyrnidae\n",
	})
	writeFiles(t, fsys, "/incoming", images("CAR", 5))
	writeFiles(t, fsys, "/incoming", images("SPL", 1))
	writeFiles(t, fsys, "/incoming", images("XYZ", 1))
}

func TestFamilyPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	familyFixture(t, fsys)
	dir := t.TempDir()

	settings := testSettings()
	settings.Reorganize.SourceDir = "/incoming"
	settings.Reorganize.SpeciesRoot = "/species"
	settings.Reorganize.ReferenceTable = "/ref/families.csv"
	settings.Reorganize.OutputRoot = "/families"
	settings.Report = "/reports/family.yaml"
	settings.Chart = "/reports/family.html"
	settings.Metrics = conf.MetricsSettings{Enabled: true, Textfile: filepath.Join(dir, "corpusprep.prom")}
	settings.Ledger = conf.LedgerSettings{Enabled: true, Path: filepath.Join(dir, "ledger.db")}

	env, out := testEnv(settings, fsys)
	require.NoError(t, Family(ctx, env))

	assert.Equal(t, 7, countImages(t, fsys, "/incoming"), "the reorganization copies")
	assert.Equal(t, 4, countImages(t, fsys, "/families/train/Carcharhinidae"))
	assert.Equal(t, 1, countImages(t, fsys, "/families/val/Carcharhinidae"))
	assert.Zero(t, countImages(t, fsys, "/families/Carcharhinidae"), "the split moves")
	assert.Equal(t, 1, countImages(t, fsys, "/families/val/Sphyrnidae"), "a single-image family goes to val")
	assert.Zero(t, countImages(t, fsys, "/families/train/Sphyrnidae"))
	assert.Zero(t, countImages(t, fsys, "/families/Sphyrnidae"))

	summary := out.String()
	assert.Contains(t, summary, "Reorganize by family (copy)")
	assert.Contains(t, summary, "XYZ")
	assert.Contains(t, summary, "Split (move)")

	data, err := afero.ReadFile(fsys, "/reports/family.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "command: family")
	assert.Contains(t, string(data), "unknown_codes:")
	ok, err := afero.Exists(fsys, "/reports/family.html")
	require.NoError(t, err)
	assert.True(t, ok)

	prom, err := os.ReadFile(settings.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `corpusprep_runs_total{command="family",status="success"} 1`)
	assert.Contains(t, string(prom), `corpusprep_subset_records{subset="train"} 4`)
	assert.Contains(t, string(prom), `corpusprep_subset_records{subset="val"} 2`)

	store := openLedger(t, settings.Ledger.Path)
	runs, err := store.Runs(ctx, "family")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run, err := store.GetRun(ctx, env.RunID)
	require.NoError(t, err)
	assert.Len(t, run.Placements, 6)
	assert.Len(t, run.Assignments, 6)
	assert.Equal(t, string(fsutil.ModeMove), run.Mode)
	assert.Equal(t, "/incoming", run.Source)
}

func TestFamilyPipelinePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      string
		wantVal     int
		wantInPlace int
	}{
		{"unset falls back to truncate", "", 1, 0},
		{"guarantee-validation skips single-image families", string(split.GuaranteeNonEmptyValidation), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fsys := afero.NewMemMapFs()
			familyFixture(t, fsys)

			settings := testSettings()
			settings.Reorganize.SourceDir = "/incoming"
			settings.Reorganize.SpeciesRoot = "/species"
			settings.Reorganize.ReferenceTable = "/ref/families.csv"
			settings.Reorganize.OutputRoot = "/families"
			settings.Family.Policy = tt.policy
			// The standalone split policy never reaches the family run
			settings.Split.Policy = string(split.GuaranteeNonEmptyValidation)

			env, _ := testEnv(settings, fsys)
			require.NoError(t, Family(context.Background(), env))

			assert.Equal(t, tt.wantVal, countImages(t, fsys, "/families/val/Sphyrnidae"))
			assert.Equal(t, tt.wantInPlace, countImages(t, fsys, "/families/Sphyrnidae"))
		})
	}
}

func TestReorganizeBySpecies(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	familyFixture(t, fsys)

	settings := testSettings()
	settings.Reorganize.SourceDir = "/incoming"
	settings.Reorganize.SpeciesRoot = "/species"
	settings.Reorganize.OutputRoot = "/by-species"
	settings.Reorganize.GroupBy = "species"
	env, out := testEnv(settings, fsys)
	require.NoError(t, Reorganize(context.Background(), env))

	assert.Equal(t, 5, countImages(t, fsys, "/by-species/CAR-carcharhinus-limbatus"))
	assert.Equal(t, 1, countImages(t, fsys, "/by-species/SPL-sphyrna-lewini"))
	assert.Contains(t, out.String(), "Reorganize by species (copy)")
}

func consolidationFixture(t *testing.T, fsys afero.Fs, extra string) {
	t.Helper()
	writeFiles(t, fsys, "/data", map[string]string{"classes.txt": "0: blacktip\n1: goblin\n2: hammerhead\n"})
	writeFiles(t, fsys, "/data/labels", map[string]string{
		"a.txt": "0 0.5 0.5 0.1 0.1\n0 0.4 0.4 0.2 0.2\n2 0.3 0.3 0.1 0.1\n",
		"b.txt": "1 0.5 0.5 0.1 0.1\n2 0.6 0.6 0.1 0.1\n" + extra,
	})
}

func TestConsolidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	consolidationFixture(t, fsys, "")

	settings := testSettings()
	settings.Consolidate.Manifest = "/data/classes.txt"
	settings.Consolidate.LabelDir = "/data/labels"
	settings.Ledger = conf.LedgerSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "ledger.db")}
	env, out := testEnv(settings, fsys)
	require.NoError(t, Consolidate(ctx, env))

	manifest, err := afero.ReadFile(fsys, "/data/classes_final.txt")
	require.NoError(t, err)
	assert.Contains(t, string(manifest), consolidate.DefaultRareName)

	b, err := afero.ReadFile(fsys, "/data/labels/b.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "2 "), "goblin is merged into the rare class, got %q", b)
	assert.Contains(t, out.String(), "Merged into rare_species (id 2)")

	run, err := openLedger(t, settings.Ledger.Path).GetRun(ctx, env.RunID)
	require.NoError(t, err)
	require.Len(t, run.ClassMappings, 3)
	assert.True(t, run.ClassMappings[1].Rare)
	assert.Equal(t, "/data/classes_final.txt", run.Output)
}

func TestConsolidateStrictFailureIsRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	consolidationFixture(t, fsys, "9 0.1 0.1 0.1 0.1\n")

	settings := testSettings()
	settings.Consolidate.Manifest = "/data/classes.txt"
	settings.Consolidate.LabelDir = "/data/labels"
	settings.Consolidate.Strict = true
	settings.Report = "/reports/consolidate.yaml"
	settings.Chart = "/reports/consolidate.html"
	settings.Ledger = conf.LedgerSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "ledger.db")}
	env, _ := testEnv(settings, fsys)

	err := Consolidate(ctx, env)
	require.ErrorIs(t, err, consolidate.ErrUnmappedClass)

	b, readErr := afero.ReadFile(fsys, "/data/labels/b.txt")
	require.NoError(t, readErr)
	assert.True(t, strings.HasPrefix(string(b), "1 "), "strict mode writes nothing")

	data, readErr := afero.ReadFile(fsys, "/reports/consolidate.yaml")
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "error:")
	exists, _ := afero.Exists(fsys, "/reports/consolidate.html")
	assert.False(t, exists, "no chart for a failed run")

	run, getErr := openLedger(t, settings.Ledger.Path).GetRun(ctx, env.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusFailed, run.Status)
}
