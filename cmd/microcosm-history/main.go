// Command microcosm-history inspects the snapshots and archived actions a
// microcosm repo persists.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/docopt/docopt-go"

	"microcosm/internal/adapters/archive"
	"microcosm/internal/blob"
	"microcosm/internal/config"
	"microcosm/internal/core"
	"microcosm/pkg/domain"
)

const version = "0.1.0"

const usage = `Inspect persisted microcosm history.

Storage and blob backends are selected with MICROCOSM_* environment
variables (see internal/config). MICROCOSM_LOG_VERBOSITY sets the glog
level debug lines need; MICROCOSM_DEBUG=1 marks histories kept whole.

Usage:
    microcosm-history tree [--json]
    microcosm-history state [--key=<domain>]
    microcosm-history archive list [--prefix=<prefix>]
    microcosm-history archive show <action_id>
    microcosm-history -h | --help
    microcosm-history --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --json             Print the history as JSON instead of a tree.
    --key=<domain>     Only print the state of one domain.
    --prefix=<prefix>  Archive key prefix, defaults to MICROCOSM_ARCHIVE_PREFIX.`

var (
	exitFunc  = os.Exit
	lookupEnv = os.LookupEnv
	osArgs    = os.Args
)

func main() {
	exitFunc(run(osArgs[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var helpOutput string
	var helpErr error
	parser := &docopt.Parser{
		HelpHandler: func(err error, usage string) {
			helpErr, helpOutput = err, usage
		},
	}
	opts, err := parser.ParseArgs(usage, args, version)
	if helpOutput != "" {
		if helpErr != nil {
			fmt.Fprintln(stderr, helpOutput)
			return 2
		}
		fmt.Fprintln(stdout, helpOutput)
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.FromLookup(lookupEnv)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}

	ctx := context.Background()
	logger := core.NewGlogLogger(cfg.LogVerbosity)
	switch {
	case flag(opts, "tree"):
		err = printTree(ctx, cfg, logger, flag(opts, "--json"), stdout)
	case flag(opts, "state"):
		err = printState(ctx, cfg, logger, str(opts, "--key"), stdout)
	case flag(opts, "archive") && flag(opts, "list"):
		prefix := str(opts, "--prefix")
		if prefix == "" {
			prefix = cfg.ArchivePrefix
		}
		err = listArchive(ctx, cfg, logger, prefix, stdout)
	case flag(opts, "archive") && flag(opts, "show"):
		err = showArchived(ctx, cfg, logger, str(opts, "<action_id>"), stdout)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func loadSnapshot(ctx context.Context, cfg config.Config, logger core.Logger) (domain.Snapshot, error) {
	store, err := core.OpenSnapshotStore(ctx, cfg.Storage)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer func() { _ = store.Close() }()
	logger.Debug("loading snapshot", "driver", cfg.Storage.Driver)
	snapshot, ok, err := store.Load(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("no snapshot saved in %s store", cfg.Storage.Driver)
	}
	return snapshot, nil
}

func printTree(ctx context.Context, cfg config.Config, logger core.Logger, asJSON bool, w io.Writer) error {
	snapshot, err := loadSnapshot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, snapshot.History)
	}
	if snapshot.History.Tree == nil {
		fmt.Fprintln(w, "(empty history)")
		return nil
	}
	if err := core.RenderTree(w, snapshot.History.Tree); err != nil {
		return err
	}
	fmt.Fprintf(w, "head=%s size=%d saved=%s\n", snapshot.History.Head, snapshot.History.Size, snapshot.SavedAt.Format("2006-01-02T15:04:05Z07:00"))
	if !cfg.Debug {
		fmt.Fprintf(w, "settled actions are archived under %s/\n", cfg.ArchivePrefix)
	}
	return nil
}

func printState(ctx context.Context, cfg config.Config, logger core.Logger, key string, w io.Writer) error {
	snapshot, err := loadSnapshot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if key == "" {
		return writeJSON(w, snapshot.State)
	}
	v, ok := snapshot.State[key]
	if !ok {
		keys := make([]string, 0, len(snapshot.State))
		for k := range snapshot.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("domain %q not in snapshot (have %s)", key, strings.Join(keys, ", "))
	}
	return writeJSON(w, v)
}

func openBlob(ctx context.Context, cfg config.Config, logger core.Logger) (blob.Store, error) {
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	logger.Debug("opened blob store", "driver", cfg.Blob.Driver)
	return store, nil
}

func listArchive(ctx context.Context, cfg config.Config, logger core.Logger, prefix string, w io.Writer) error {
	store, err := openBlob(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	infos, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Key, info.Size, info.Metadata["command"], info.Metadata["status"])
	}
	return nil
}

func showArchived(ctx context.Context, cfg config.Config, logger core.Logger, id string, w io.Writer) error {
	store, err := openBlob(ctx, cfg, logger)
	if err != nil {
		return err
	}
	doc, err := archive.Load(ctx, store, cfg.ArchivePrefix, id)
	if err != nil {
		return err
	}
	return writeJSON(w, doc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func str(opts docopt.Opts, name string) string {
	v, _ := opts.String(name)
	return v
}
