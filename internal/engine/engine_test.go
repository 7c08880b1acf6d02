package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/gitlab-sync/internal/endpoint"
	"github.com/skaphos/gitlab-sync/internal/engine"
	"github.com/skaphos/gitlab-sync/internal/gitx"
	"github.com/skaphos/gitlab-sync/internal/model"
	"github.com/skaphos/gitlab-sync/internal/report"
)

func testProject(root, name string) model.Project {
	return model.Project{
		Name:          name,
		Path:          "group/" + name,
		LocalPath:     filepath.Join(root, name),
		DefaultBranch: "main",
		SSHURL:        "git@gitlab.example.com:group/" + name + ".git",
		HTTPURL:       "https://gitlab.example.com/group/" + name + ".git",
	}
}

// cleanRepo scripts a clean checkout of main with the upstream at gitlab/main.
func cleanRepo(adapter *fakeAdapter, prober *fakeProber, p model.Project) *fakeRepo {
	prober.states[p.LocalPath] = model.RepoState{Path: p.LocalPath, RemoteURL: p.SSHURL}
	r := adapter.repo(p.LocalPath)
	r.remoteURL = p.SSHURL
	r.head = model.Head{Branch: "main"}
	r.upstream = "gitlab/main"
	r.revs = map[string]string{"gitlab/main": "1111111111111111", "refs/heads/main": "0000000000000000"}
	r.ancestors = map[string]bool{}
	return r
}

var _ = Describe("Reconcile", func() {
	var (
		ctx      context.Context
		root     string
		adapter  *fakeAdapter
		prober   *fakeProber
		recorder *report.Recorder
		eng      *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		adapter = newFakeAdapter()
		prober = newFakeProber()
		recorder = &report.Recorder{}
		eng = engine.New(engine.Options{Transport: model.TransportSSH}, adapter, prober, recorder)
	})

	It("skips archived projects without touching the disk", func() {
		p := testProject(root, "old")
		p.Archived = true

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcomes).To(Equal([]engine.Outcome{{Kind: engine.OutcomeSkippedArchived}}))
		Expect(prober.Probes()).To(BeEmpty())
		Expect(adapter.Calls(p.LocalPath)).To(BeEmpty())
	})

	DescribeTable("skips absent paths outside sync mode",
		func(mode model.Mode) {
			p := testProject(root, "app")
			res, err := eng.Reconcile(ctx, p, mode)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Final().Kind).To(Equal(engine.OutcomeSkippedAbsent))
			Expect(adapter.Calls(p.LocalPath)).To(BeEmpty())
		},
		Entry("pull", model.ModePull),
		Entry("push", model.ModePush),
	)

	It("clones an absent project, tracks the default branch and pushes", func() {
		p := testProject(root, "app")
		r := adapter.repo(p.LocalPath)
		r.head = model.Head{Branch: "master", Unborn: true}
		r.hasRefs = true
		r.revs = map[string]string{"gitlab/main": "abcdef0123456789"}
		r.fetched = []model.RefChange{{Ref: "refs/remotes/gitlab/main", New: "abcdef0123456789", Note: "new"}}

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Ops(p.LocalPath)).To(Equal([]string{
			"init", "add-remote", "remote-url", "fetch", "head", "has-refs",
			"rev-parse", "rev-parse", "branch", "checkout", "submodules", "push",
		}))
		Expect(adapter.Calls(p.LocalPath)).To(ContainElements(
			"add-remote gitlab "+p.SSHURL,
			"branch main gitlab/main",
			"push gitlab refs/heads/main:refs/heads/main",
		))
		Expect(res.Outcomes).To(HaveLen(2))
		Expect(res.Outcomes[0].Kind).To(Equal(engine.OutcomeCloned))
		Expect(res.Outcomes[0].Fetched).To(HaveLen(1))
		Expect(res.Outcomes[1].Kind).To(Equal(engine.OutcomePushSucceeded))
	})

	It("stops quietly when a fresh clone has no remote refs", func() {
		p := testProject(root, "empty")
		adapter.repo(p.LocalPath).head = model.Head{Branch: "master", Unborn: true}

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcomes).To(Equal([]engine.Outcome{{Kind: engine.OutcomeSkippedEmpty}}))
		Expect(res.NeedsAttention()).To(BeTrue())
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("push"))
		Expect(recorder.Messages(report.LevelInfo)).To(ContainElement("empty repository, nothing to do"))
	})

	It("aborts the run when the canonical remote cannot be read back", func() {
		p := testProject(root, "app")
		adapter.repo(p.LocalPath).dropRemote = true

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(errors.Is(err, engine.ErrRemoteInvariant)).To(BeTrue())
		Expect(res.Outcomes).To(BeEmpty())
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("fetch"))
	})

	It("uses the http URL and emits an advisory for non-ssh transports", func() {
		eng = engine.New(engine.Options{Transport: model.TransportHTTPS}, adapter, prober, recorder)
		p := testProject(root, "app")
		adapter.repo(p.LocalPath).head = model.Head{Unborn: true}

		_, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Calls(p.LocalPath)).To(ContainElement("add-remote gitlab " + p.HTTPURL))
		Expect(recorder.Messages(report.LevelInfo)).To(ContainElement(endpoint.HTTPAdvisory))
	})

	It("only fetches a dirty working copy and still pushes in sync mode", func() {
		p := testProject(root, "app")
		cleanRepo(adapter, prober, p)
		prober.states[p.LocalPath] = model.RepoState{Path: p.LocalPath, RemoteURL: p.SSHURL, Dirty: true}

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Ops(p.LocalPath)).To(Equal([]string{"fetch", "submodules", "push"}))
		Expect(res.Outcomes[0].Kind).To(Equal(engine.OutcomeFetchedDirty))
		Expect(res.Final().Kind).To(Equal(engine.OutcomePushSucceeded))
		Expect(recorder.Messages(report.LevelWarn)).To(ContainElement("repository is dirty, fetching updates, please merge manually"))
	})

	It("never pushes in pull mode", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["HEAD..gitlab/main"] = true

		res, err := eng.Reconcile(ctx, p, model.ModePull)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcomes).To(HaveLen(1))
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("push"))
	})

	It("fast-forwards a clean branch that is behind", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["HEAD..gitlab/main"] = true

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Calls(p.LocalPath)).To(ContainElement("merge-ff gitlab/main"))
		Expect(res.Outcomes[0]).To(Equal(engine.Outcome{Kind: engine.OutcomePulled, FastForward: true}))
	})

	It("falls back to remote/default when no upstream is configured", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.upstream = ""
		r.ancestors["gitlab/main..HEAD"] = true

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Calls(p.LocalPath)).To(ContainElement("is-ancestor gitlab/main HEAD"))
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("merge"))
		Expect(res.Outcomes[0].Kind).To(Equal(engine.OutcomePulled))
	})

	It("creates a merge commit for diverged history", func() {
		p := testProject(root, "app")
		cleanRepo(adapter, prober, p)

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Calls(p.LocalPath)).To(ContainElement("merge gitlab/main"))
		Expect(res.Outcomes[0]).To(Equal(engine.Outcome{Kind: engine.OutcomePulled, FastForward: false}))
	})

	It("aborts conflicting merges and skips the push", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.mergeErr = fmt.Errorf("%w: CONFLICT (content): Merge conflict in README.md", gitx.ErrMergeConflict)

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Ops(p.LocalPath)).To(ContainElement("merge-abort"))
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("push"))
		Expect(res.Final().Kind).To(Equal(engine.OutcomePullFailed))
		Expect(res.Final().ErrorClass).To(Equal(gitx.ClassConflict))
	})

	It("refuses to merge into a detached HEAD", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.head = model.Head{Detached: true}

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Final().Kind).To(Equal(engine.OutcomePullFailed))
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("merge"))
	})

	DescribeTable("refuses to merge into a branch other than the default",
		func(upstream string) {
			p := testProject(root, "app")
			r := cleanRepo(adapter, prober, p)
			r.head = model.Head{Branch: "feature"}
			r.upstream = upstream

			res, err := eng.Reconcile(ctx, p, model.ModeSync)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcomes).To(HaveLen(1))
			Expect(res.Final().Kind).To(Equal(engine.OutcomePullFailed))
			Expect(res.Final().Reason).To(ContainSubstring("HEAD is on feature, not main"))
			Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement(BeElementOf("merge", "merge-ff", "push")))
			Expect(adapter.Ops(p.LocalPath)).To(ContainElement("fetch"))
		},
		Entry("without an upstream", ""),
		Entry("tracking the canonical remote", "gitlab/feature"),
	)

	It("classifies fetch failures and logs the fetch hint", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.fetchErr = errors.New("git@gitlab.example.com: Permission denied (publickey)")

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Final().Kind).To(Equal(engine.OutcomePullFailed))
		Expect(res.Final().ErrorClass).To(Equal(gitx.ClassAuth))
		Expect(recorder.Messages(report.LevelWarn)).To(ContainElement(ContainSubstring("fetching failed, possible reasons")))
	})

	It("records probe failures as pull failures", func() {
		p := testProject(root, "app")
		prober.errs[p.LocalPath] = fmt.Errorf("%w: open %s", gitx.ErrCorruptRepo, p.LocalPath)

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Final().ErrorClass).To(Equal(gitx.ClassCorrupt))
	})

	It("re-creates a missing canonical remote on an existing repository", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.remoteURL = ""
		prober.states[p.LocalPath] = model.RepoState{Path: p.LocalPath, MissingRemote: true}
		r.ancestors["HEAD..gitlab/main"] = true

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Calls(p.LocalPath)[0]).To(Equal("add-remote gitlab " + p.SSHURL))
		Expect(res.Outcomes[0].Kind).To(Equal(engine.OutcomePulled))
		Expect(recorder.Messages(report.LevelWarn)).To(ContainElement("repository does not have a gitlab remote, adding it"))
	})

	It("warns about a canonical remote pointing elsewhere without rewriting it", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["HEAD..gitlab/main"] = true
		prober.states[p.LocalPath] = model.RepoState{Path: p.LocalPath, RemoteURL: "git@gitlab.example.com:other/app.git"}

		_, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapter.Ops(p.LocalPath)).NotTo(ContainElement("add-remote"))
		Expect(recorder.Messages(report.LevelWarn)).To(ContainElement(ContainSubstring("points at git@gitlab.example.com:other/app.git")))
	})

	It("treats an equivalent remote URL spelling as the same repository", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["HEAD..gitlab/main"] = true
		prober.states[p.LocalPath] = model.RepoState{Path: p.LocalPath, RemoteURL: "ssh://git@gitlab.example.com/group/app"}

		_, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(recorder.Messages(report.LevelWarn)).To(BeEmpty())
	})

	It("keeps submodule failures out of the outcome", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["HEAD..gitlab/main"] = true
		r.submodules = []gitx.Submodule{{Name: "lib", Path: "vendor/lib"}, {Name: "docs", Path: "docs"}}
		r.submoduleEr = map[string]error{"vendor/lib": errors.New("fatal: repository not found")}

		res, err := eng.Reconcile(ctx, p, model.ModeSync)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Failed()).To(BeFalse())
		Expect(res.Final().Kind).To(Equal(engine.OutcomePushSucceeded))
		Expect(res.Submodules).To(HaveLen(2))
		Expect(res.Submodules[0].Error).To(ContainSubstring("repository not found"))
		Expect(res.Submodules[1].Error).To(BeEmpty())
	})

	It("records rejected pushes with their ref updates", func() {
		p := testProject(root, "app")
		r := cleanRepo(adapter, prober, p)
		r.ancestors["gitlab/main..HEAD"] = true
		r.pushUpdates = []model.RefUpdate{{Flag: "!", Local: "refs/heads/main", Remote: "refs/heads/main", Summary: "[rejected] (fetch first)"}}
		r.pushErr = errors.New("error: failed to push some refs")

		res, err := eng.Reconcile(ctx, p, model.ModePush)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcomes[0].Kind).To(Equal(engine.OutcomePulled))
		push := res.Final()
		Expect(push.Kind).To(Equal(engine.OutcomePushFailed))
		Expect(push.ErrorClass).To(Equal(gitx.ClassRejected))
		Expect(push.RefUpdates[0].Rejected()).To(BeTrue())
		Expect(res.Failed()).To(BeTrue())
	})
})
