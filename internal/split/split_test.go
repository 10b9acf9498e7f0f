package split

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/corpusprep/internal/errors"
	"github.com/tphakala/corpusprep/internal/fsutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func addGroup(t *testing.T, fsys afero.Fs, root, group, code string, n int) []string {
	t.Helper()
	names := make([]string, n)
	for i := range n {
		names[i] = fmt.Sprintf("%s_%03d.jpg", code, i)
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(root, group, names[i]), []byte(names[i]), 0o644))
	}
	return names
}

func listImages(t *testing.T, fsys afero.Fs, dir string) []string {
	t.Helper()
	if !fsutil.DirExists(fsys, dir) {
		return nil
	}
	names, err := fsutil.ListImages(fsys, dir)
	require.NoError(t, err)
	return names
}

func TestTrainSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n      int
		ratio  float64
		policy Policy
		want   int
	}{
		{10, 0.8, GuaranteeNonEmptyValidation, 8},
		{10, 0.8, Truncate, 8},
		{1, 0.8, GuaranteeNonEmptyValidation, 0},
		{1, 0.8, Truncate, 0},
		{2, 0.5, GuaranteeNonEmptyValidation, 1},
		{5, 0.99, GuaranteeNonEmptyValidation, 4},
		// validation is sized first and rounds down
		{6, 0.8, GuaranteeNonEmptyValidation, 5},
		{7, 0.8, GuaranteeNonEmptyValidation, 6},
		{9, 0.8, GuaranteeNonEmptyValidation, 8},
		{14, 0.8, GuaranteeNonEmptyValidation, 12},
		{7, 0.8, Truncate, 5},
		{9, 0.8, Truncate, 7},
		{5, 0.99, Truncate, 4},
		{100, 0.29, Truncate, 29},
		{3, 0.9999, Truncate, 2},
		{0, 0.8, Truncate, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%v_%s", tt.n, tt.ratio, tt.policy), func(t *testing.T) {
			t.Parallel()
			got := TrainSize(tt.n, tt.ratio, tt.policy)
			assert.Equal(t, tt.want, got)
			if tt.policy == GuaranteeNonEmptyValidation && tt.n > 0 {
				assert.Less(t, got, tt.n, "validation must keep at least one member")
			}
		})
	}
}

func TestValidateRatio(t *testing.T) {
	t.Parallel()

	for _, r := range []float64{0, 1, -0.5, 1.5} {
		err := ValidateRatio(r)
		require.ErrorIs(t, err, ErrInvalidRatio, "ratio %v", r)
	}
	require.NoError(t, ValidateRatio(0.8))
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("Truncate")
	require.NoError(t, err)
	assert.Equal(t, Truncate, p)
	assert.Equal(t, 1, p.DefaultMinMembers())

	p, err = ParsePolicy("guarantee-validation")
	require.NoError(t, err)
	assert.Equal(t, 2, p.DefaultMinMembers())

	_, err = ParsePolicy("round")
	require.Error(t, err)

	sg, err := ParseSmallGroupPolicy("keep")
	require.NoError(t, err)
	assert.Equal(t, SmallGroupKeep, sg)
	_, err = ParseSmallGroupPolicy("drop")
	require.Error(t, err)
}

func TestPartitionDeterministicAndComplete(t *testing.T) {
	t.Parallel()

	members := []string{"e.jpg", "a.jpg", "c.jpg", "b.jpg", "d.jpg", "f.jpg", "g.jpg"}
	train1, val1 := Partition(members, 0.7, GuaranteeNonEmptyValidation, rand.New(rand.NewPCG(40, 40)))

	// input order must not matter
	reversed := slices.Clone(members)
	slices.Reverse(reversed)
	train2, val2 := Partition(reversed, 0.7, GuaranteeNonEmptyValidation, rand.New(rand.NewPCG(40, 40)))

	assert.Equal(t, train1, train2)
	assert.Equal(t, val1, val2)
	assert.Len(t, train1, 5)
	assert.Len(t, val1, 2)

	all := append(slices.Clone(train1), val1...)
	slices.Sort(all)
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	assert.Equal(t, sorted, all, "every member lands in exactly one subset")
	for _, m := range train1 {
		assert.NotContains(t, val1, m)
	}
	assert.Equal(t, []string{"e.jpg", "a.jpg", "c.jpg", "b.jpg", "d.jpg", "f.jpg", "g.jpg"}, members, "input is not modified")
}

func TestSplitCarcharhinidae(t *testing.T) {
	t.Parallel()

	run := func() (*Result, afero.Fs) {
		fsys := afero.NewMemMapFs()
		addGroup(t, fsys, "/corpus", "Carcharhinidae", "CAR", 10)
		s, err := New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Seed: 5, Fs: fsys})
		require.NoError(t, err)
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		return res, fsys
	}

	res1, fsys := run()
	require.Len(t, res1.Groups, 1)
	g := res1.Groups[0]
	assert.Equal(t, "Carcharhinidae", g.Group)
	assert.Len(t, g.Train, 8)
	assert.Len(t, g.Val, 2)
	assert.Equal(t, 10, res1.Total)

	assert.Equal(t, g.Train, listImages(t, fsys, "/out/train/Carcharhinidae"))
	assert.Equal(t, g.Val, listImages(t, fsys, "/out/val/Carcharhinidae"))
	assert.Len(t, listImages(t, fsys, "/corpus/Carcharhinidae"), 10, "copy mode keeps the sources")

	res2, _ := run()
	assert.Equal(t, res1.Groups, res2.Groups, "rerun must reproduce the identical partition")
}

func TestSplitSkipsSingleImageSpecies(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	addGroup(t, fsys, "/species", "RHT-Rhincodon-typus", "RHT", 1)
	addGroup(t, fsys, "/species", "SPL-Sphyrna-lewini", "SPL", 5)
	require.NoError(t, fsys.MkdirAll("/species/EMPTY-Nothing-here", 0o755))

	s, err := New(Options{CorpusRoot: "/species", OutputRoot: "/out", Ratio: 0.8, Seed: 40, Fs: fsys})
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"EMPTY-Nothing-here", "RHT-Rhincodon-typus"}, res.SkippedGroups)
	assert.Nil(t, listImages(t, fsys, "/out/train/RHT-Rhincodon-typus"))
	assert.Nil(t, listImages(t, fsys, "/out/val/RHT-Rhincodon-typus"))
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.TrainTotal)
	assert.Equal(t, 1, res.ValTotal)
}

func TestSplitKeepSmallGroups(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	addGroup(t, fsys, "/species", "RHT-Rhincodon-typus", "RHT", 1)

	s, err := New(Options{
		CorpusRoot:  "/species",
		OutputRoot:  "/out",
		Ratio:       0.8,
		SmallGroups: SmallGroupKeep,
		Fs:          fsys,
	})
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.SkippedGroups)
	assert.Equal(t, 1, res.ValTotal, "the single member goes to validation")
}

func TestSplitMoveRemovesEmptyGroups(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	addGroup(t, fsys, "/corpus", "Sphyrnidae", "SPL", 6)
	addGroup(t, fsys, "/corpus", "Lamnidae", "ISO", 4)
	require.NoError(t, afero.WriteFile(fsys, "/corpus/Lamnidae/notes.md", []byte("keep"), 0o644))

	s, err := New(Options{
		CorpusRoot: "/corpus",
		Ratio:      0.8,
		Seed:       5,
		Policy:     Truncate,
		Mode:       fsutil.ModeMove,
		Fs:         fsys,
	})
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, fsutil.Exists(fsys, "/corpus/Sphyrnidae"), "emptied group folder is removed")
	assert.True(t, fsutil.Exists(fsys, "/corpus/Lamnidae/notes.md"), "non-image files keep their folder")
	assert.Len(t, listImages(t, fsys, "/corpus/train/Sphyrnidae"), 4)
	assert.Len(t, listImages(t, fsys, "/corpus/val/Sphyrnidae"), 2)
	assert.Equal(t, 10, res.Total)

	// a rerun inside the same root must not treat train/ and val/ as groups
	res, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	for _, g := range res.Groups {
		assert.NotEqual(t, "train", g.Group)
		assert.NotEqual(t, "val", g.Group)
	}
}

func TestSplitRerunReplacesEarlierCopies(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	names := addGroup(t, fsys, "/corpus", "Carcharhinidae", "CAR", 10)

	var res *Result
	for _, seed := range []uint64{1, 2} {
		s, err := New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Seed: seed, Fs: fsys})
		require.NoError(t, err)
		res, err = s.Run(context.Background())
		require.NoError(t, err)
	}

	train := listImages(t, fsys, "/out/train/Carcharhinidae")
	val := listImages(t, fsys, "/out/val/Carcharhinidae")
	assert.Equal(t, res.Groups[0].Train, train, "train holds exactly the last run")
	assert.Equal(t, res.Groups[0].Val, val, "val holds exactly the last run")
	for _, name := range train {
		assert.NotContains(t, val, name)
	}

	all := append(slices.Clone(train), val...)
	slices.Sort(all)
	assert.Equal(t, names, all)

	entries, err := afero.ReadDir(fsys, "/out/train")
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backup folders are left behind")
}

func TestSplitRerunRollbackRestoresEarlierCopies(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	addGroup(t, base, "/corpus", "Carcharhinidae", "CAR", 10)
	s, err := New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Seed: 1, Fs: base})
	require.NoError(t, err)
	first, err := s.Run(context.Background())
	require.NoError(t, err)

	// the second run clears both folders, then fails on its first val copy
	fsys := &failingFs{Fs: base, failOn: "/val/Carcharhinidae/CAR"}
	s, err = New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Seed: 2, Fs: fsys})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, first.Groups[0].Train, listImages(t, base, "/out/train/Carcharhinidae"))
	assert.Equal(t, first.Groups[0].Val, listImages(t, base, "/out/val/Carcharhinidae"))
}

func TestSplitMoveRefusesOccupiedOutput(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	names := addGroup(t, fsys, "/corpus", "Carcharhinidae", "CAR", 10)
	earlier := addGroup(t, fsys, "/out/val", "Carcharhinidae", "OLD", 1)

	s, err := New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Mode: fsutil.ModeMove, Fs: fsys})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	assert.Equal(t, names, listImages(t, fsys, "/corpus/Carcharhinidae"), "nothing was moved")
	assert.Equal(t, earlier, listImages(t, fsys, "/out/val/Carcharhinidae"), "earlier output is kept")
	assert.Nil(t, listImages(t, fsys, "/out/train/Carcharhinidae"))
}

func TestSplitInjectedSource(t *testing.T) {
	t.Parallel()

	plan := func() *Result {
		fsys := afero.NewMemMapFs()
		addGroup(t, fsys, "/corpus", "A", "A", 9)
		addGroup(t, fsys, "/corpus", "B", "B", 7)
		s, err := New(Options{CorpusRoot: "/corpus", Ratio: 0.6, Source: rand.NewPCG(1, 2), Fs: fsys})
		require.NoError(t, err)
		res, err := s.Plan(context.Background())
		require.NoError(t, err)
		return res
	}
	assert.Equal(t, plan().Groups, plan().Groups)
}

// failingFs fails writes whose target path contains failOn
type failingFs struct {
	afero.Fs
	failOn string
}

func (f *failingFs) Rename(oldname, newname string) error {
	if strings.Contains(newname, f.failOn) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.Contains(name, f.failOn) && flag&os.O_CREATE != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestSplitMoveRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	base := afero.NewMemMapFs()
	names := addGroup(t, base, "/corpus", "Carcharhinidae", "CAR", 10)
	fsys := &failingFs{Fs: base, failOn: "/val/"}

	s, err := New(Options{CorpusRoot: "/corpus", OutputRoot: "/out", Ratio: 0.8, Mode: fsutil.ModeMove, Fs: fsys})
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	assert.Equal(t, names, listImages(t, base, "/corpus/Carcharhinidae"), "all sources restored")
	assert.Empty(t, listImages(t, base, "/out/train/Carcharhinidae"))
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := New(Options{CorpusRoot: "/c", Ratio: 1})
	require.ErrorIs(t, err, ErrInvalidRatio)

	_, err = New(Options{Ratio: 0.8})
	require.Error(t, err)

	_, err = New(Options{CorpusRoot: "/c", Ratio: 0.8, Mode: "link"})
	require.Error(t, err)

	_, err = New(Options{CorpusRoot: "/c", Ratio: 0.8, TrainDir: "x", ValDir: "x"})
	require.Error(t, err)

	s, err := New(Options{CorpusRoot: "/missing", Ratio: 0.8, Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	_, err = s.Plan(context.Background())
	require.Error(t, err)
}
