package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notemesh/configs"
	"github.com/Aman-CERP/notemesh/internal/assemble"
	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/pkg/version"
)

// isolate keeps the CLI away from the user's config, logs and network.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"NOTEMESH_DATA_DIR", "NOTEMESH_MAX_BACKUPS", "NOTEMESH_DEBOUNCE",
		"NOTEMESH_EMBEDDER", "NOTEMESH_EMBEDDINGS_MODEL", "NOTEMESH_OLLAMA_HOST",
		"NOTEMESH_LOG_LEVEL", "NOTEMESH_METRICS_ADDR",
		"OBSIDIAN_VAULT_PATH", "NOTEMESH_VAULT_PATH",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("NOTEMESH_TOKENIZER", "estimate")
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newVault writes a small vault:
//
//	Projects/Hub.md -> Spoke, Ghost; #infra
//	Spoke.md        -> Leaf; #infra
//	Leaf.md         -> nothing
//	Lonely.md       -> nothing
func newVault(t *testing.T) string {
	t.Helper()
	isolate(t)
	root := t.TempDir()
	writeNote(t, root, "Projects/Hub.md", "Cluster upgrade hub. [[Spoke]] and [[Ghost]]. #infra\n")
	writeNote(t, root, "Spoke.md", "Kubernetes node pool notes. [[Leaf]] #infra\n")
	writeNote(t, root, "Leaf.md", "Leaf details about node drains.\n")
	writeNote(t, root, "Lonely.md", "Bread baking schedule.\n")
	return root
}

func runCLI(t *testing.T, ctx context.Context, vault string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--vault", vault}, args...))
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func mustRun(t *testing.T, vault string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, context.Background(), vault, args...)
	require.NoError(t, err, out)
	return out
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: root command
	cmd := NewRootCmd()

	// Then: every command is registered
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"index", "watch", "serve", "stats", "backlinks", "links", "tags", "orphans",
		"recent", "search", "pack", "backups", "check", "config", "version",
	} {
		assert.True(t, names[want], want)
	}

	for _, flag := range []string{"vault", "debug", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCmd_MissingVault(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, context.Background(), filepath.Join(t.TempDir(), "nope"), "stats")

	require.ErrorContains(t, err, "vault directory does not exist")
}

func TestIndexCmd_IndexesThenNoOp(t *testing.T) {
	vault := newVault(t)

	// When: indexing a fresh vault
	out := mustRun(t, vault, "index")

	// Then
	assert.Contains(t, out, "4 changes pending")
	assert.Contains(t, out, "Indexed 4 notes")

	// And: a second run has nothing to do
	out = mustRun(t, vault, "index")
	assert.Contains(t, out, "No changes. The index is up to date.")
}

func TestIndexCmd_DryRunWritesNothing(t *testing.T) {
	vault := newVault(t)

	out := mustRun(t, vault, "index", "--dry-run")

	assert.Contains(t, out, "New:")
	assert.Contains(t, out, "Projects/Hub.md")
	assert.NoFileExists(t, filepath.Join(vault, ".notemesh", index.LedgerFileName))
}

func TestIndexCmd_JSON(t *testing.T) {
	vault := newVault(t)

	out := mustRun(t, vault, "index", "--json")

	var res index.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 4, res.Indexed)
	assert.Len(t, res.Changes.New, 4)
	assert.False(t, res.NoOp)
}

func TestStatsCmd(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	out := mustRun(t, vault, "stats")
	assert.Contains(t, out, "Indexed notes:")
	assert.Contains(t, out, "Projects:")
	assert.Contains(t, out, "#infra:")

	var so StatsOutput
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, vault, "stats", "--json")), &so))
	assert.Equal(t, 4, so.Notes)
	assert.Equal(t, 4, so.Network.TotalFiles)
	assert.Equal(t, 1, so.Network.OrphanedNotes)
	assert.NotNil(t, so.LastUpdate)
	assert.Equal(t, "static", so.Embedder)
}

func TestLinkCommands(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	back := mustRun(t, vault, "backlinks", "Spoke")
	assert.Contains(t, back, "**Hub**")

	fwd := mustRun(t, vault, "links", "Hub")
	assert.Contains(t, fwd, "**Spoke**")
	assert.Contains(t, fwd, "**Ghost** (not created yet)")

	orphans := mustRun(t, vault, "orphans")
	assert.Contains(t, orphans, "**Lonely**")
	assert.NotContains(t, orphans, "**Leaf**")
}

func TestBacklinksCmd_Depth(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	// When: following backlinks of Leaf two hops
	out := mustRun(t, vault, "backlinks", "Leaf", "--depth", "2")

	// Then: Spoke links to Leaf and Hub links to Spoke
	assert.Contains(t, out, "1. Spoke (root)")
	assert.Contains(t, out, "2. Hub (Projects)")

	_, err := runCLI(t, context.Background(), vault, "backlinks", "Nobody", "--depth", "2")
	assert.Error(t, err)
}

func TestTagsCmd(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	all := mustRun(t, vault, "tags")
	assert.Contains(t, all, "#infra:  2")

	tagged := mustRun(t, vault, "tags", "infra")
	assert.Contains(t, tagged, "## Notes tagged #infra (2)")
}

func TestSearchAndRecentCmds(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	out := mustRun(t, vault, "search", "kubernetes", "node", "pool", "-k", "2")
	assert.Contains(t, out, `## Search Results for "kubernetes node pool"`)
	assert.NotContains(t, out, "### 3.")

	related := mustRun(t, vault, "search", "--related", "Spoke.md")
	assert.Contains(t, related, `## Notes Related to "Spoke"`)

	recent := mustRun(t, vault, "recent")
	assert.Contains(t, recent, "## Modified in the Last 7 Days (4)")
}

func TestPackCmd(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	// When: packing Hub as markdown
	out := mustRun(t, vault, "pack", "Hub", "--max-tokens", "2000")

	// Then
	assert.Contains(t, out, "# Context Package")
	assert.Contains(t, out, "**Focus**: Hub")
	assert.Contains(t, out, "/ 2000")

	// And: as JSON with only the primary note
	out = mustRun(t, vault, "pack", "Hub", "--json", "--no-backlinks", "--no-forward", "--no-semantic")
	var bundle assemble.Bundle
	require.NoError(t, json.Unmarshal([]byte(out), &bundle))
	assert.Equal(t, 1, bundle.Count())
	assert.LessOrEqual(t, bundle.TokensUsed, 100000)

	_, err := runCLI(t, context.Background(), vault, "pack", "Ghost")
	assert.Error(t, err)
}

func TestBackupsCmd(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")
	writeNote(t, vault, "Leaf.md", "Leaf details, revised.\n")
	mustRun(t, vault, "index")

	out := mustRun(t, vault, "backups")
	assert.Contains(t, out, "   1. ")

	var list []index.Backup
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, vault, "backups", "--json")), &list))
	require.NotEmpty(t, list)

	out = mustRun(t, vault, "backups", "prune", "--keep", "1")
	assert.Contains(t, out, "kept the newest 1")
}

func TestCheckCmd(t *testing.T) {
	vault := newVault(t)
	mustRun(t, vault, "index")

	out := mustRun(t, vault, "check")

	assert.Contains(t, out, "All stores agree on 4 notes")
}

func TestConfigCmd(t *testing.T) {
	vault := newVault(t)

	out := mustRun(t, vault, "config", "show")
	assert.Contains(t, out, "max_backups: 5")
	assert.Contains(t, out, "provider: estimate")
	assert.Contains(t, out, "debounce: 5s")

	path := mustRun(t, vault, "config", "path")
	assert.Contains(t, path, filepath.Join("notemesh", "config.yaml"))
}

func TestConfigInit_WritesVaultTemplateOnce(t *testing.T) {
	vault := newVault(t)
	target := filepath.Join(vault, ".notemesh.yaml")

	// When: creating the vault config
	out := mustRun(t, vault, "config", "init")

	// Then
	assert.Contains(t, out, "Created configuration")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, configs.VaultConfigTemplate, string(data))

	// And: it still loads, and a second init keeps the file
	require.NoError(t, os.WriteFile(target, []byte("version: 1\nindex:\n  max_backups: 2\n"), 0o644))
	out = mustRun(t, vault, "config", "init")
	assert.Contains(t, out, "already exists")
	assert.Contains(t, mustRun(t, vault, "config", "show"), "max_backups: 2")
}

func TestConfigInit_User(t *testing.T) {
	vault := newVault(t)

	mustRun(t, vault, "config", "init", "--user")

	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "notemesh", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, configs.UserConfigTemplate, string(data))
	assert.Contains(t, mustRun(t, vault, "config", "show"), "provider: static")
}

func TestWatchCmd_StopsWithContext(t *testing.T) {
	vault := newVault(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := runCLI(t, ctx, vault, "watch", "--poll")

	require.NoError(t, err)
	assert.Contains(t, out, "Watching "+vault)
	assert.Contains(t, out, "Stopping...")
	assert.Contains(t, out, "Index runs:")
}

func TestServeCmd_UnknownTransport(t *testing.T) {
	vault := newVault(t)

	_, err := runCLI(t, context.Background(), vault, "serve", "--transport", "pigeon")

	require.ErrorContains(t, err, "unknown transport")
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	out := mustRun(t, t.TempDir(), "version", "--short")
	assert.Equal(t, version.Version+"\n", out)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, t.TempDir(), "version", "--json")), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestProfilingFlags_WriteHeapProfile(t *testing.T) {
	isolate(t)
	heap := filepath.Join(t.TempDir(), "heap.prof")

	mustRun(t, t.TempDir(), "--profile-mem", heap, "version")

	info, err := os.Stat(heap)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
