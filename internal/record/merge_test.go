package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func success(id string, priority int, rec *Record) PartialResult {
	return PartialResult{AdapterID: id, Priority: priority, Record: rec, Status: StatusSuccess}
}

func TestMergeScalarFirstWins(t *testing.T) {
	merged := Merge(New(), success("a", 1, New().Set(Title, "Effective Java")), DefaultPolicy())
	merged = Merge(merged, success("b", 0, New().Set(Title, "effective java").Set(Pages, "412")), DefaultPolicy())

	v, ok := merged.Get(Title)
	require.True(t, ok)
	assert.Equal(t, "Effective Java", v.Text)
	assert.Equal(t, "a", v.Source)

	v, ok = merged.Get(Pages)
	require.True(t, ok)
	assert.Equal(t, "412", v.Text)
	assert.Equal(t, "b", v.Source)
}

func TestMergeOverridableNeedsStrictlyHigherPriority(t *testing.T) {
	policy := Policy{Overridable: map[Key]bool{Description: true}}

	merged := Merge(New(), success("low", 5, New().Set(Description, "short blurb")), policy)
	merged = Merge(merged, success("same", 5, New().Set(Description, "same priority")), policy)
	assert.Equal(t, "short blurb", merged.Text(Description))

	merged = Merge(merged, success("high", 1, New().Set(Description, "full description")), policy)
	assert.Equal(t, "full description", merged.Text(Description))
	v, _ := merged.Get(Description)
	assert.Equal(t, "high", v.Source)

	merged = Merge(merged, success("higher-number", 3, New().Set(Description, "nope")), policy)
	assert.Equal(t, "full description", merged.Text(Description))
}

func TestMergeIgnoresEmptyAndFailed(t *testing.T) {
	base := New().Set(Title, "Dune").Stamp("a")

	got := Merge(base, PartialResult{AdapterID: "b", Status: StatusEmpty}, DefaultPolicy())
	assert.True(t, got.Equal(base))

	got = Merge(base, PartialResult{AdapterID: "c", Status: StatusFailed, Err: errors.New("boom"), Record: New().Set(Title, "x")}, DefaultPolicy())
	assert.True(t, got.Equal(base))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := New().Set(Title, "Dune").Add(Authors, "Frank Herbert").Stamp("a")
	incoming := New().Add(Authors, "Brian Herbert").Set(Subtitle, "Part one")

	_ = Merge(base, success("b", 2, incoming), DefaultPolicy())

	assert.Equal(t, []string{"Frank Herbert"}, base.Strings(Authors))
	assert.Empty(t, base.Text(Subtitle))
	assert.Empty(t, incoming.Sources())
}

func TestMergeListUnionByIdentity(t *testing.T) {
	merged := Merge(New(), success("a", 1, New().Add(Authors, "Bloch, Joshua").Add(Subjects, "Java", "Programming")), DefaultPolicy())
	merged = Merge(merged, success("b", 2, New().Add(Authors, "Joshua  Bloch", "Neal Gafter").Add(Subjects, "JAVA", "Software engineering")), DefaultPolicy())

	assert.Equal(t, []string{"Bloch, Joshua", "Neal Gafter"}, merged.Strings(Authors))
	assert.Equal(t, []string{"Java", "Programming", "Software engineering"}, merged.Strings(Subjects))

	authors := merged.List(Authors)
	assert.Equal(t, "a", authors[0].Source)
	assert.Equal(t, "b", authors[1].Source)
}

func TestMergeImagesFirstPerSlot(t *testing.T) {
	a := New().SetImage(0, Small, FileReference{Path: "/covers/a-s.jpg"})
	b := New().
		SetImage(0, Small, FileReference{Path: "/covers/b-s.jpg"}).
		SetImage(0, Large, FileReference{Path: "/covers/b-l.jpg"})

	merged := Merge(New(), success("a", 1, a), DefaultPolicy())
	merged = Merge(merged, success("b", 2, b), DefaultPolicy())

	small, ok := merged.Image(0, Small)
	require.True(t, ok)
	assert.Equal(t, "/covers/a-s.jpg", small.File.Path)
	assert.Equal(t, "a", small.Source)

	large, ok := merged.Image(0, Large)
	require.True(t, ok)
	assert.Equal(t, "/covers/b-l.jpg", large.File.Path)

	assert.Contains(t, merged.Keys(), "coverImage[0].large")
}

func TestFoldKeepsHigherPriorityRemoteCover(t *testing.T) {
	lo := success("b", 2, New().Set(Title, "X").SetImage(0, Large, FileReference{URL: "https://b/large.jpg"}))
	hi := success("a", 1, New().Set(Title, "X").SetImage(0, Large, FileReference{URL: "https://a/large.jpg"}))

	for _, partials := range [][]PartialResult{{lo, hi}, {hi, lo}} {
		merged := Fold(partials, DefaultPolicy())

		title, _ := merged.Get(Title)
		assert.Equal(t, "a", title.Source)

		large, ok := merged.Image(0, Large)
		require.True(t, ok)
		assert.Equal(t, "https://a/large.jpg", large.File.URL)
		assert.Equal(t, "a", large.Source)
	}

	// arrival order decides for incremental merges
	merged := Merge(Merge(New(), lo, DefaultPolicy()), hi, DefaultPolicy())
	large, _ := merged.Image(0, Large)
	assert.Equal(t, "b", large.Source)
}

func TestFoldIsOrderIndependent(t *testing.T) {
	partials := []PartialResult{
		success("openlibrary", 1, New().Set(Title, "Effective Java").Add(Authors, "Joshua Bloch").Add(Subjects, "Java")),
		success("googlebooks", 2, New().Set(Title, "Effective Java (3rd Edition)").Set(Pages, "412").Add(Authors, "Bloch, Joshua").Add(Subjects, "Computers")),
		success("hardcover", 2, New().Add(Publishers, "Addison-Wesley", "Addison Wesley").Add(Subjects, "programming")),
		{AdapterID: "isbndb", Priority: 0, Status: StatusFailed, Err: errors.New("timeout")},
		{AdapterID: "goodreads", Priority: 4, Status: StatusEmpty},
	}

	want := Fold(partials, DefaultPolicy())
	assert.Equal(t, "Effective Java", want.Text(Title))
	assert.Equal(t, []string{"Java", "Computers", "programming"}, want.Strings(Subjects))

	for _, perm := range permutations(len(partials)) {
		shuffled := make([]PartialResult, len(partials))
		for i, idx := range perm {
			shuffled[i] = partials[idx]
		}
		got := Fold(shuffled, DefaultPolicy())
		require.True(t, want.Equal(got), "permutation %v produced a different record", perm)
	}
}

func TestFoldTieBreaksOnAdapterID(t *testing.T) {
	partials := []PartialResult{
		success("zeta", 1, New().Set(Title, "From zeta")),
		success("alpha", 1, New().Set(Title, "From alpha")),
	}
	got := Fold(partials, DefaultPolicy())
	assert.Equal(t, "From alpha", got.Text(Title))
}

func permutations(n int) [][]int {
	var out [][]int
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	var permute func(k int)
	permute = func(k int) {
		if k == n {
			out = append(out, append([]int(nil), idx...))
			return
		}
		for i := k; i < n; i++ {
			idx[k], idx[i] = idx[i], idx[k]
			permute(k + 1)
			idx[k], idx[i] = idx[i], idx[k]
		}
	}
	permute(0)
	return out
}
