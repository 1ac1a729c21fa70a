package cmds

import (
	"context"
	"fmt"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
	"github.com/vmanoilov/bettergpt/pkg/store"
)

// openBackend opens the conversation store and link repository named by the
// --snapshot / --db flags. Exactly one of the two must be set.
func openBackend(ctx context.Context, snapshotPath string, dbPath string) (conversation.Store, links.Repository, func(), error) {
	switch {
	case snapshotPath != "" && dbPath != "":
		return nil, nil, nil, fmt.Errorf("--snapshot and --db are mutually exclusive")
	case snapshotPath != "":
		snapshot, err := store.LoadSnapshot(snapshotPath)
		if err != nil {
			return nil, nil, nil, err
		}
		memStore, repo, err := snapshot.Materialize(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return memStore, repo, func() {}, nil
	case dbPath != "":
		db, err := store.OpenSQLite(dbPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, db.Links(), func() { _ = db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("one of --snapshot or --db is required")
	}
}
