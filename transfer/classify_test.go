package transfer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/engine"
)

func TestClassify(t *testing.T) {
	const (
		hashA = sneakernet.CommitID("f0e549c50372ac71af894309db05a63695e460a3")
		hashB = sneakernet.CommitID("b64afb86af7150438beb62ac1b832e8a3ba831b9")
		hashC = sneakernet.CommitID("86a7bda1e3a9b9ceceb7678aa77710db5c3f2b12")
	)
	var (
		master  = engine.Ref{Name: "refs/heads/master", Hash: hashA}
		develop = engine.Ref{Name: "refs/heads/develop", Hash: hashB}
		head    = engine.Ref{Name: "HEAD", Hash: hashB}
		tracked = engine.Ref{Name: "refs/remotes/origin/master", Hash: hashC}
		tag     = engine.Ref{Name: "refs/tags/v1", Hash: hashC}
		squash1 = engine.Ref{Name: "refs/heads/sneakernet/squash-20260102T030405Z-01J", Hash: hashC}
		squash2 = engine.Ref{Name: "refs/heads/sneakernet/squash-20260102T030406Z-01K", Hash: hashA}
	)
	testItems := []struct {
		name    string
		heads   []engine.Ref
		current string
		out     Target
		err     sneakernet.ErrorCategory
	}{
		{"squash", []engine.Ref{squash1}, "master",
			Target{sneakernet.Kind_Squash, squash1}, ""},
		{"squash wins over branches", []engine.Ref{master, squash1, head}, "master",
			Target{sneakernet.Kind_Squash, squash1}, ""},
		{"two squashes", []engine.Ref{squash1, squash2}, "master",
			Target{}, sneakernet.ErrAmbiguousArtifact},
		{"current branch", []engine.Ref{master, develop, head}, "master",
			Target{sneakernet.Kind_Incremental, master}, ""},
		{"only branch", []engine.Ref{develop}, "master",
			Target{sneakernet.Kind_Incremental, develop}, ""},
		{"only branch among other refs", []engine.Ref{develop, tracked, tag}, "",
			Target{sneakernet.Kind_Incremental, develop}, ""},
		{"branch HEAD points at", []engine.Ref{master, develop, head}, "feature",
			Target{sneakernet.Kind_Incremental, develop}, ""},
		{"detached consumer", []engine.Ref{master, develop, head}, "",
			Target{sneakernet.Kind_Incremental, develop}, ""},
		{"HEAD only", []engine.Ref{head}, "master",
			Target{sneakernet.Kind_Incremental, head}, ""},
		{"many branches, no HEAD", []engine.Ref{master, develop}, "feature",
			Target{}, sneakernet.ErrAmbiguousArtifact},
		{"HEAD matches two branches", []engine.Ref{
			{Name: "refs/heads/a", Hash: hashB},
			{Name: "refs/heads/b", Hash: hashB},
			head,
		}, "feature",
			Target{}, sneakernet.ErrAmbiguousArtifact},
		{"nothing", nil, "master",
			Target{}, sneakernet.ErrAmbiguousArtifact},
		{"only tags", []engine.Ref{tag}, "master",
			Target{}, sneakernet.ErrAmbiguousArtifact},
	}
	for _, item := range testItems {
		t.Run(item.name, func(t *testing.T) {
			target, err := Classify(item.heads, item.current)
			if cat := sneakernet.CategoryOf(err); cat != item.err {
				t.Fatalf("expected error category %q but got %q (%v)", item.err, cat, err)
			}
			if diff := cmp.Diff(item.out, target); diff != "" {
				t.Errorf("target mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTargetRefs(t *testing.T) {
	testItems := []struct {
		ref      string
		tracking string
		refspec  string
	}{
		{"refs/heads/master", "refs/remotes/usb/master", "+refs/heads/master:refs/remotes/usb/master"},
		{"refs/heads/sneakernet/squash-x", "refs/remotes/usb/sneakernet/squash-x", "+refs/heads/sneakernet/squash-x:refs/remotes/usb/sneakernet/squash-x"},
		{"HEAD", "refs/remotes/usb/HEAD", "+HEAD:refs/remotes/usb/HEAD"},
	}
	for _, item := range testItems {
		t.Run(item.ref, func(t *testing.T) {
			target := Target{Ref: engine.Ref{Name: item.ref}}
			if result := target.TrackingRef("usb"); result != item.tracking {
				t.Errorf("expected %q but got %q", item.tracking, result)
			}
			if result := target.Refspec("usb"); result != item.refspec {
				t.Errorf("expected %q but got %q", item.refspec, result)
			}
		})
	}
}

func TestRangeRevs(t *testing.T) {
	const since = sneakernet.CommitID("f0e549c50372ac71af894309db05a63695e460a3")
	if diff := cmp.Diff([]string{"--all"}, Range{}.Revs("master")); diff != "" {
		t.Errorf("full range mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{string(since) + "..master"}, Range{Since: since}.Revs("master")); diff != "" {
		t.Errorf("incremental range mismatch (-want +got):\n%s", diff)
	}
	if !(Range{}).Full() || (Range{Since: since}).Full() {
		t.Errorf("Full() is wrong")
	}
}
