package workflows_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/backend/memory"
	"github.com/PolarWolf314/lockbox/internal/configs"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/gitfilter"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/secrets"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

const (
	fpAlice = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	fpBob   = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	fpCarol = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

type testRepo struct {
	t    *testing.T
	root string
	mem  *memory.Backend
}

// setupRepo creates a git repository in a temp dir, changes into it, and
// returns a memory backend holding every test identity's private key.
func setupRepo(t *testing.T) *testRepo {
	t.Helper()
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	t.Chdir(root)
	t.Setenv("LOCKBOX_KEYRING", filepath.Join(t.TempDir(), "keyring"))

	originalProject := configs.ProjectLockboxSettings
	originalUser := configs.UserLockboxSettings
	t.Cleanup(func() {
		configs.ProjectLockboxSettings = originalProject
		configs.UserLockboxSettings = originalUser
	})
	configs.UserLockboxSettings = &configs.UserSettings{Username: "testuser"}

	return &testRepo{t: t, root: root, mem: memory.New(fpAlice, fpBob, fpCarol)}
}

func (r *testRepo) init(members ...workflows.MemberSpec) *workflows.InitResult {
	r.t.Helper()
	res, err := workflows.Init(context.Background(), workflows.InitOptions{
		ProjectName: "demo",
		Members:     members,
		Backend:     r.mem,
	})
	require.NoError(r.t, err)
	return res
}

func (r *testRepo) write(rel, content string) {
	r.t.Helper()
	path := filepath.Join(r.root, filepath.FromSlash(rel))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(r.t, os.WriteFile(path, []byte(content), 0600))
}

func (r *testRepo) keyFile(name string) string {
	r.t.Helper()
	path := filepath.Join(r.t.TempDir(), name+".asc")
	require.NoError(r.t, os.WriteFile(path, []byte(name), 0600))
	return path
}

func (r *testRepo) track(patterns ...string) *workflows.TrackResult {
	r.t.Helper()
	res, err := workflows.Track(context.Background(), workflows.TrackOptions{Patterns: patterns, Backend: r.mem})
	require.NoError(r.t, err)
	return res
}

func (r *testRepo) manifest() *manifest.Manifest {
	r.t.Helper()
	settings := configs.NewProjectSettings(r.root)
	m, err := manifest.NewStore(settings.ManifestPath, settings.LockPath, 0).Load()
	require.NoError(r.t, err)
	return m
}

// recipientsOf reads the stored ciphertext for path and returns who it is for.
func (r *testRepo) recipientsOf(path string) []string {
	r.t.Helper()
	f, ok := r.manifest().Get(path)
	require.True(r.t, ok, "%s is not tracked", path)
	data, err := secrets.NewObjectStore(filepath.Join(r.root, ".lockbox", "objects")).Get(f.CiphertextDigest)
	require.NoError(r.t, err)
	recipients, _, err := memory.Open(data)
	require.NoError(r.t, err)
	return recipients
}

func TestInit(t *testing.T) {
	r := setupRepo(t)
	res := r.init(workflows.MemberSpec{Fingerprint: fpAlice, Name: "alice"})

	assert.Equal(t, "demo", res.ProjectName)
	assert.Equal(t, r.root, res.ProjectPath)
	assert.NotEmpty(t, res.ProjectUUID)
	assert.Equal(t, 1, res.RecipientVersion)
	require.Len(t, res.Members, 1)
	assert.Equal(t, "alice", res.Members[0].Name)
	assert.True(t, r.mem.Published(fpAlice))

	for _, name := range []string{"config.toml", "manifest.toml", ".gitignore"} {
		assert.FileExists(t, filepath.Join(r.root, ".lockbox", name))
	}
	assert.DirExists(t, filepath.Join(r.root, ".lockbox", "objects"))
	assert.DirExists(t, filepath.Join(r.root, ".lockbox", "keys"))

	m := r.manifest()
	assert.False(t, m.Dirty())
	assert.Equal(t, []string{fpAlice}, m.LiveSet().Fingerprints)

	repo, err := git.PlainOpen(r.root)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	assert.Equal(t, "lockbox filter clean %f",
		cfg.Raw.Section("filter").Subsection(gitfilter.DriverName).Option("clean"))

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpInit, entries[0].Operation)
}

func TestInitTwiceFails(t *testing.T) {
	r := setupRepo(t)
	r.init()

	_, err := workflows.Init(context.Background(), workflows.InitOptions{Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrProjectAlreadyInitialized)
}

func TestInitOutsideRepository(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := workflows.Init(context.Background(), workflows.InitOptions{Backend: memory.New()})
	assert.ErrorIs(t, err, kerrors.ErrNotARepository)
}

func TestInitUnknownMemberKeyCleansUp(t *testing.T) {
	r := setupRepo(t)
	const stranger = "DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"

	_, err := workflows.Init(context.Background(), workflows.InitOptions{
		Members: []workflows.MemberSpec{{Fingerprint: stranger}},
		Backend: r.mem,
	})
	require.ErrorIs(t, err, kerrors.ErrPublicKeyNotFound)
	assert.NoDirExists(t, filepath.Join(r.root, ".lockbox"))
}

func TestParseMemberSpec(t *testing.T) {
	spec, err := workflows.ParseMemberSpec("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa:Alice Smith")
	require.NoError(t, err)
	assert.Equal(t, fpAlice, spec.Fingerprint)
	assert.Equal(t, "Alice Smith", spec.Name)

	_, err = workflows.ParseMemberSpec("not-hex")
	assert.ErrorIs(t, err, kerrors.ErrInvalidFingerprint)
}

func TestWorkflowsRequireInitializedProject(t *testing.T) {
	setupRepo(t)
	ctx := context.Background()

	_, err := workflows.Members(ctx, workflows.MembersOptions{})
	assert.ErrorIs(t, err, kerrors.ErrProjectNotInitialized)

	_, err = workflows.Status(ctx, workflows.StatusOptions{})
	assert.ErrorIs(t, err, kerrors.ErrProjectNotInitialized)

	_, err = workflows.Reencrypt(ctx, workflows.ReencryptOptions{Backend: memory.New()})
	assert.ErrorIs(t, err, kerrors.ErrProjectNotInitialized)

	_, err = workflows.Log(ctx, workflows.LogOptions{})
	assert.ErrorIs(t, err, kerrors.ErrProjectNotInitialized)
}

func TestAddMember(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("app.env", "TOKEN=1")
	r.track("app.env")

	res, err := workflows.AddMember(context.Background(), workflows.AddMemberOptions{
		Fingerprint: strings.ToLower(fpBob),
		KeyFile:     r.keyFile("bob"),
		Backend:     r.mem,
	})
	require.NoError(t, err)

	assert.Equal(t, fpBob, res.Member.Fingerprint)
	assert.Equal(t, "bob", res.Member.Name)
	assert.Equal(t, 2, res.RecipientVersion)
	assert.Equal(t, 1, res.StaleFiles)
	assert.True(t, r.manifest().Dirty())

	// Adding does not touch ciphertext until reencrypt runs.
	assert.Equal(t, []string{fpAlice}, r.recipientsOf("app.env"))
}

func TestAddMemberErrors(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	ctx := context.Background()

	_, err := workflows.AddMember(ctx, workflows.AddMemberOptions{Fingerprint: "xyz", Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrInvalidFingerprint)

	_, err = workflows.AddMember(ctx, workflows.AddMemberOptions{Fingerprint: fpAlice, Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrDuplicateMember)

	_, err = workflows.AddMember(ctx, workflows.AddMemberOptions{
		Fingerprint: fpBob,
		KeyFile:     filepath.Join(t.TempDir(), "missing.asc"),
		Backend:     r.mem,
	})
	assert.ErrorIs(t, err, kerrors.ErrFileNotFound)
}

func TestRevokeMemberWithReencrypt(t *testing.T) {
	r := setupRepo(t)
	r.init(
		workflows.MemberSpec{Fingerprint: fpAlice, Name: "alice"},
		workflows.MemberSpec{Fingerprint: fpBob, Name: "bob"},
	)
	r.write("a.env", "A=1")
	r.write("config/b.env", "B=2")
	r.track("a.env", "config/b.env")

	var (
		mu   sync.Mutex
		seen []string
	)
	res, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{
		Fingerprint: fpBob,
		Reencrypt:   true,
		Workers:     2,
		OnFile: func(path string, _ error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, path)
		},
		Backend:     r.mem,
	})
	require.NoError(t, err)

	assert.False(t, res.AlreadyRevoked)
	assert.False(t, res.Member.Active())
	assert.Equal(t, 2, res.StaleFiles)
	require.NotNil(t, res.Reencrypt)
	assert.Equal(t, []string{"a.env", "config/b.env"}, res.Reencrypt.Reencrypted)
	assert.True(t, res.Reencrypt.NeedsRenormalize())
	assert.ElementsMatch(t, []string{"a.env", "config/b.env"}, seen)

	m := r.manifest()
	assert.False(t, m.Dirty())
	assert.Empty(t, m.ListStale())
	assert.Equal(t, []string{fpAlice}, r.recipientsOf("a.env"))
	assert.Equal(t, []string{fpAlice}, r.recipientsOf("config/b.env"))

	again, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{
		Fingerprint: fpBob,
		Backend:     r.mem,
	})
	require.NoError(t, err)
	assert.True(t, again.AlreadyRevoked)
	assert.Equal(t, res.RecipientVersion, again.RecipientVersion)
}

func TestRevokeUnknownMember(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})

	_, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{
		Fingerprint: fpCarol,
		Backend:     r.mem,
	})
	assert.ErrorIs(t, err, kerrors.ErrUnknownMember)
}

func TestMembers(t *testing.T) {
	r := setupRepo(t)
	r.init(
		workflows.MemberSpec{Fingerprint: fpAlice, Name: "alice"},
		workflows.MemberSpec{Fingerprint: fpBob, Name: "bob"},
		workflows.MemberSpec{Fingerprint: fpCarol, Name: "carol"},
	)
	_, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{Fingerprint: fpAlice, Backend: r.mem})
	require.NoError(t, err)

	res, err := workflows.Members(context.Background(), workflows.MembersOptions{})
	require.NoError(t, err)
	require.Len(t, res.Members, 2)
	assert.Equal(t, "bob", res.Members[0].Name)
	assert.Equal(t, "carol", res.Members[1].Name)
	assert.Equal(t, 2, res.RecipientVersion)

	all, err := workflows.Members(context.Background(), workflows.MembersOptions{IncludeRevoked: true})
	require.NoError(t, err)
	require.Len(t, all.Members, 3)
	assert.Equal(t, "alice", all.Members[2].Name)
	assert.False(t, all.Members[2].Active())
}

func TestTrack(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("secrets/one.env", "1")
	r.write("secrets/nested/two.env", "2")
	r.write("secrets/readme.md", "docs")

	res := r.track("secrets/**/*.env")
	assert.Equal(t, []string{"secrets/nested/two.env", "secrets/one.env"}, res.Tracked)
	assert.Equal(t, 1, res.RecipientVersion)

	attrs, err := os.ReadFile(filepath.Join(r.root, gitfilter.AttributesFile))
	require.NoError(t, err)
	assert.Contains(t, string(attrs), "/secrets/one.env filter=lockbox")
	assert.Contains(t, string(attrs), "/secrets/nested/two.env filter=lockbox")

	_, err = workflows.Track(context.Background(), workflows.TrackOptions{Patterns: []string{"secrets/one.env"}, Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrAlreadyTracked)

	_, err = workflows.Track(context.Background(), workflows.TrackOptions{Patterns: []string{"nope/*.env"}, Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrNoFilesFound)
}

func TestTrackWithoutMembers(t *testing.T) {
	r := setupRepo(t)
	r.init()
	r.write("a.env", "A=1")

	_, err := workflows.Track(context.Background(), workflows.TrackOptions{Patterns: []string{"a.env"}, Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrEmptyRecipientSet)
	assert.Empty(t, r.manifest().Paths())
}

func TestTrackFailureLeavesNoObjects(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.write("b.env", "B=1")

	calls := 0
	r.mem.BeforeEncrypt = func([]byte) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return nil
	}
	_, err := workflows.Track(context.Background(), workflows.TrackOptions{Patterns: []string{"a.env", "b.env"}, Backend: r.mem})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Empty(t, r.manifest().Paths())

	for _, dir := range []string{"objects", "staging"} {
		entries, err := os.ReadDir(filepath.Join(r.root, ".lockbox", dir))
		if !errors.Is(err, fs.ErrNotExist) {
			require.NoError(t, err)
		}
		assert.Empty(t, entries, ".lockbox/%s should be empty", dir)
	}

	r.mem.BeforeEncrypt = nil
	res := r.track("a.env", "b.env")
	assert.Len(t, res.Tracked, 2)
	for _, path := range res.Tracked {
		assert.Equal(t, []string{fpAlice}, r.recipientsOf(path))
	}
}

func TestUntrack(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.write("b.env", "B=1")
	r.track("a.env", "b.env")

	res, err := workflows.Untrack(context.Background(), workflows.UntrackOptions{Paths: []string{"a.env"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.env"}, res.Untracked)
	assert.Equal(t, 1, res.PrunedObjects)
	assert.Equal(t, []string{"b.env"}, r.manifest().Paths())
	assert.FileExists(t, filepath.Join(r.root, "a.env"))

	attrs, err := os.ReadFile(filepath.Join(r.root, gitfilter.AttributesFile))
	require.NoError(t, err)
	assert.NotContains(t, string(attrs), "/a.env")

	_, err = workflows.Untrack(context.Background(), workflows.UntrackOptions{Paths: []string{"a.env"}})
	assert.ErrorIs(t, err, kerrors.ErrUntrackedFile)
}

func TestReencryptNothingToDo(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.track("a.env")

	res, err := workflows.Reencrypt(context.Background(), workflows.ReencryptOptions{Backend: r.mem})
	require.NoError(t, err)
	assert.Empty(t, res.Reencrypted)
	assert.False(t, res.NeedsRenormalize())
	assert.Equal(t, configs.DefaultWorkers, res.Workers)
}

func TestReencryptAfterAddMember(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.track("a.env")

	_, err := workflows.AddMember(context.Background(), workflows.AddMemberOptions{
		Fingerprint: fpBob,
		KeyFile:     r.keyFile("bob"),
		Backend:     r.mem,
	})
	require.NoError(t, err)

	res, err := workflows.Reencrypt(context.Background(), workflows.ReencryptOptions{Workers: 1, Backend: r.mem})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.env"}, res.Reencrypted)
	assert.Equal(t, 2, res.TargetVersion)
	assert.Equal(t, 1, res.Workers)
	assert.ElementsMatch(t, []string{fpAlice, fpBob}, r.recipientsOf("a.env"))
}

func TestReencryptPartialFailure(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice}, workflows.MemberSpec{Fingerprint: fpBob})
	r.write("a.env", "A=1")
	r.write("b.env", "fail")
	r.track("a.env", "b.env")

	_, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{Fingerprint: fpBob, Backend: r.mem})
	require.NoError(t, err)

	r.mem.BeforeEncrypt = func(plaintext []byte) error {
		if string(plaintext) == "fail" {
			return kerrors.ErrUnauthorizedDecrypt
		}
		return nil
	}
	_, err = workflows.Reencrypt(context.Background(), workflows.ReencryptOptions{Backend: r.mem})
	var partial *kerrors.PartialReencryptionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"b.env"}, partial.Paths())
	assert.Equal(t, kerrors.ExitAuthorization, kerrors.ExitCode(err))

	status, err := workflows.Status(context.Background(), workflows.StatusOptions{})
	require.NoError(t, err)
	require.NotNil(t, status.Pending)
	assert.Equal(t, 2, status.Pending.Planned)
	assert.Equal(t, 1, status.Pending.Staged)
	assert.Equal(t, []string{"b.env"}, status.Pending.Failed)

	r.mem.BeforeEncrypt = nil
	res, err := workflows.Reencrypt(context.Background(), workflows.ReencryptOptions{Backend: r.mem})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.env", "b.env"}, res.Reencrypted)
	assert.Equal(t, 1, res.Reused)
	assert.True(t, res.Resumed)
}

func TestStatus(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("current.env", "C=1")
	r.write("modified.env", "M=1")
	r.write("missing.env", "X=1")
	r.track("current.env", "modified.env", "missing.env")

	r.write("modified.env", "M=2")
	require.NoError(t, os.Remove(filepath.Join(r.root, "missing.env")))

	res, err := workflows.Status(context.Background(), workflows.StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, "demo", res.ProjectName)
	assert.Equal(t, 1, res.ActiveMembers)
	assert.Nil(t, res.Pending)

	states := make(map[string]workflows.FileState)
	for _, f := range res.Files {
		states[f.Path] = f.State
	}
	assert.Equal(t, workflows.StateCurrent, states["current.env"])
	assert.Equal(t, workflows.StateModified, states["modified.env"])
	assert.Equal(t, workflows.StateMissing, states["missing.env"])
	assert.Equal(t, workflows.StatusSummary{Current: 1, Modified: 1, Missing: 1}, res.Summary)
	assert.Empty(t, res.Unfiltered)

	_, err = workflows.AddMember(context.Background(), workflows.AddMemberOptions{
		Fingerprint: fpBob,
		KeyFile:     r.keyFile("bob"),
		Backend:     r.mem,
	})
	require.NoError(t, err)

	res, err = workflows.Status(context.Background(), workflows.StatusOptions{})
	require.NoError(t, err)
	assert.True(t, res.Dirty)
	assert.Equal(t, 3, res.Summary.Stale)
}

func TestStatusReportsUnfilteredFiles(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.track("a.env")
	require.NoError(t, os.Remove(filepath.Join(r.root, gitfilter.AttributesFile)))

	res, err := workflows.Status(context.Background(), workflows.StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.env"}, res.Unfiltered)

	_, err = workflows.Track(context.Background(), workflows.TrackOptions{Patterns: []string{"a.env"}, Backend: r.mem})
	assert.ErrorIs(t, err, kerrors.ErrAlreadyTracked)

	res, err = workflows.Status(context.Background(), workflows.StatusOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Unfiltered)
}

func TestFilterCleanAndSmudge(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	ctx := context.Background()

	var ciphertext bytes.Buffer
	err := workflows.FilterClean(ctx, workflows.FilterOptions{
		Path:    "new.env",
		In:      strings.NewReader("NEW=1"),
		Out:     &ciphertext,
		Backend: r.mem,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new.env"}, r.manifest().Paths())

	recipients, _, err := memory.Open(ciphertext.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{fpAlice}, recipients)

	var plaintext bytes.Buffer
	err = workflows.FilterSmudge(ctx, workflows.FilterOptions{
		Path:    "new.env",
		In:      bytes.NewReader(ciphertext.Bytes()),
		Out:     &plaintext,
		Backend: r.mem,
	})
	require.NoError(t, err)
	assert.Equal(t, "NEW=1", plaintext.String())

	var out bytes.Buffer
	err = workflows.FilterSmudge(ctx, workflows.FilterOptions{
		Path:    "new.env",
		In:      bytes.NewReader(ciphertext.Bytes()),
		Out:     &out,
		Backend: memory.New(fpCarol),
	})
	assert.ErrorIs(t, err, kerrors.ErrUnauthorizedDecrypt)
	assert.Zero(t, out.Len())

	entries, err := audit.ReadEntries()
	require.NoError(t, err)
	assert.Equal(t, audit.OpFilterClean, entries[len(entries)-1].Operation)
}

func TestLogFilters(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	r.write("a.env", "A=1")
	r.track("a.env")
	_, err := workflows.AddMember(context.Background(), workflows.AddMemberOptions{
		Fingerprint: fpBob,
		KeyFile:     r.keyFile("bob"),
		Backend:     r.mem,
	})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := workflows.Log(ctx, workflows.LogOptions{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, 3, res.TotalEntriesBeforeFilter)
	assert.Equal(t, audit.OpInit, res.Entries[0].Operation)

	res, err = workflows.Log(ctx, workflows.LogOptions{Operations: "track, add-member"})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2)

	res, err = workflows.Log(ctx, workflows.LogOptions{Limit: 1, Reverse: true})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, audit.OpAddMember, res.Entries[0].Operation)
	assert.Contains(t, workflows.FormatDetails(res.Entries[0]), "bob")

	res, err = workflows.Log(ctx, workflows.LogOptions{Until: "2000-01-01"})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)

	_, err = workflows.Log(ctx, workflows.LogOptions{Since: "yesterday"})
	assert.ErrorIs(t, err, kerrors.ErrInvalidDateFormat)
}

func TestFormatDateTime(t *testing.T) {
	assert.Equal(t, "2024-01-15 10:30:00", workflows.FormatDateTime("2024-01-15T10:30:00.123456Z"))
	assert.Equal(t, "garbage", workflows.FormatDateTime("garbage"))
}

func TestKeyWorkflowsNeedKeyManager(t *testing.T) {
	setupRepo(t)

	_, err := workflows.KeyGenerate(context.Background(), workflows.KeyGenerateOptions{Backend: memory.New()})
	assert.ErrorIs(t, err, kerrors.ErrBackendUnavailable)

	_, err = workflows.KeyList(context.Background(), workflows.KeyListOptions{Backend: memory.New()})
	assert.ErrorIs(t, err, kerrors.ErrBackendUnavailable)

	_, err = workflows.KeyRemove(context.Background(), workflows.KeyRemoveOptions{Fingerprint: fpAlice, Backend: memory.New()})
	assert.ErrorIs(t, err, kerrors.ErrBackendUnavailable)
}

// keyringBackend adds a personal keyring to the memory backend.
type keyringBackend struct {
	*memory.Backend
	keys map[string]backend.KeyInfo
}

func (b *keyringBackend) GenerateKey(_ context.Context, name, email string) (backend.KeyInfo, error) {
	return backend.KeyInfo{}, kerrors.ErrBackendUnavailable
}

func (b *keyringBackend) ListKeys(context.Context) ([]backend.KeyInfo, error) {
	var out []backend.KeyInfo
	for _, k := range b.keys {
		out = append(out, k)
	}
	return out, nil
}

func (b *keyringBackend) RemoveKey(_ context.Context, fp string) (backend.KeyInfo, error) {
	for full, k := range b.keys {
		if strings.HasSuffix(full, fp) {
			delete(b.keys, full)
			return k, nil
		}
	}
	return backend.KeyInfo{}, kerrors.ErrKeyNotFound
}

func TestKeyRemove(t *testing.T) {
	r := setupRepo(t)
	r.init(workflows.MemberSpec{Fingerprint: fpAlice})
	kb := &keyringBackend{Backend: r.mem, keys: map[string]backend.KeyInfo{
		fpAlice: {Fingerprint: fpAlice, Name: "alice", HasPrivate: true},
		fpBob:   {Fingerprint: fpBob, Name: "bob", HasPrivate: true},
	}}
	ctx := context.Background()

	res, err := workflows.KeyRemove(ctx, workflows.KeyRemoveOptions{Fingerprint: "0x" + fpAlice[24:], Backend: kb})
	require.NoError(t, err)
	assert.Equal(t, fpAlice, res.Key.Fingerprint)
	assert.True(t, res.ActiveMember)

	res, err = workflows.KeyRemove(ctx, workflows.KeyRemoveOptions{Fingerprint: fpBob, Backend: kb})
	require.NoError(t, err)
	assert.False(t, res.ActiveMember)
	assert.Empty(t, kb.keys)

	_, err = workflows.KeyRemove(ctx, workflows.KeyRemoveOptions{Fingerprint: fpBob, Backend: kb})
	assert.ErrorIs(t, err, kerrors.ErrKeyNotFound)

	_, err = workflows.KeyRemove(ctx, workflows.KeyRemoveOptions{Fingerprint: "not-hex", Backend: kb})
	assert.ErrorIs(t, err, kerrors.ErrInvalidFingerprint)
}
