package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
	versionsDomain "github.com/allisson/envsafe/internal/versions/domain"
)

// rollback reconciles the live subtree of a snapshot with its captured state
// inside one transaction.
//
// Rows that have to give up their (parent, name) or (folder, blind index) slot are
// first parked under a placeholder that keeps their stored version, so swaps and
// renames never hit the unique indexes halfway through.
type rollback struct {
	u        *snapshotUseCase
	s        scope.Scope
	snapshot *snapshotsDomain.Snapshot
	target   *foldersDomain.Tree
	versions []*versionsDomain.SecretVersion
	result   *snapshotsDomain.RollbackResult
	now      time.Time
}

func newRollback(
	u *snapshotUseCase,
	s scope.Scope,
	snapshot *snapshotsDomain.Snapshot,
	target *foldersDomain.Tree,
	versions []*versionsDomain.SecretVersion,
) *rollback {
	// Keep the capture order so results do not depend on how the repository
	// returned the versions.
	order := make(map[uuid.UUID]int, len(snapshot.SecretVersionIDs))
	for i, id := range snapshot.SecretVersionIDs {
		order[id] = i
	}
	sorted := slices.Clone(versions)
	slices.SortFunc(sorted, func(a, b *versionsDomain.SecretVersion) int { return order[a.ID] - order[b.ID] })

	return &rollback{
		u:        u,
		s:        s,
		snapshot: snapshot,
		target:   target,
		versions: sorted,
		result:   &snapshotsDomain.RollbackResult{SnapshotID: snapshot.ID},
		now:      time.Now().UTC(),
	}
}

func (r *rollback) run(ctx context.Context) error {
	extras, err := r.placeFolders(ctx)
	if err != nil {
		return err
	}
	if err := r.restoreSecrets(ctx, extras); err != nil {
		return err
	}
	if err := r.deleteFolders(ctx, extras); err != nil {
		return err
	}

	if r.result.FoldersCreated+r.result.FoldersUpdated+r.result.FoldersDeleted == 0 {
		return nil
	}
	root, err := r.u.folderRepo.GetRoot(ctx, r.s.EnvironmentID)
	if err != nil {
		return err
	}
	folders, err := r.u.folderRepo.ListByEnvironment(ctx, r.s.EnvironmentID)
	if err != nil {
		return err
	}
	tree, err := foldersDomain.BuildTree(folders, root.ID)
	if err != nil {
		return err
	}
	folderVersion, err := r.u.versioning.RecordFolderVersion(ctx, r.s.EnvironmentID, tree, r.s.Actor)
	if err != nil {
		return err
	}
	r.result.FolderVersionID = &folderVersion.ID
	return nil
}

// placeFolders moves, renames and recreates folders until every node of the
// target tree sits under its captured parent with its captured name. It returns
// the live folders of the placed subtree that the snapshot does not know,
// children first.
func (r *rollback) placeFolders(ctx context.Context) ([]uuid.UUID, error) {
	folders, err := r.u.folderRepo.ListByEnvironment(ctx, r.s.EnvironmentID)
	if err != nil {
		return nil, err
	}
	live := make(map[uuid.UUID]*foldersDomain.Folder, len(folders))
	for _, f := range folders {
		live[f.ID] = f
	}

	// A captured folder that was moved out of the subtree comes back with
	// whatever was created under it since, so its live subtree is parked too.
	rootID := r.target.Root().FolderID
	seen := map[uuid.UUID]struct{}{rootID: {}}
	for _, start := range r.target.FolderIDs() {
		if _, ok := live[start]; !ok {
			continue
		}
		liveTree, err := foldersDomain.BuildTree(folders, start)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", snapshotsDomain.ErrSnapshotInconsistent, err)
		}
		for idx := 0; idx < liveTree.Len(); idx++ {
			id := liveTree.Nodes[idx].FolderID
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			folder := live[id]
			if targetIdx, known := r.target.Find(id); known && r.placed(folder, targetIdx) {
				continue
			}
			parked := folder.Clone()
			parked.Name = ".rollback-" + folder.ID.String()
			if err := r.u.folderRepo.Update(ctx, parked, folder.Version); err != nil {
				return nil, err
			}
			live[folder.ID] = parked
		}
	}

	for idx := 1; idx < r.target.Len(); idx++ {
		node := r.target.Nodes[idx]
		parentID := r.target.Nodes[node.Parent].FolderID

		folder, ok := live[node.FolderID]
		if !ok {
			created := &foldersDomain.Folder{
				ID:            node.FolderID,
				ProjectID:     r.s.ProjectID,
				EnvironmentID: r.s.EnvironmentID,
				ParentID:      &parentID,
				Name:          node.Name,
				Version:       1,
				CreatedAt:     r.now,
				UpdatedAt:     r.now,
			}
			if err := r.u.folderRepo.Create(ctx, created); err != nil {
				return nil, err
			}
			live[created.ID] = created
			r.result.FoldersCreated++
			continue
		}
		if folder.IsRoot() {
			return nil, fmt.Errorf("%w: environment root %s is inside the snapshot subtree",
				snapshotsDomain.ErrSnapshotInconsistent, folder.ID)
		}
		if r.placed(folder, idx) {
			continue
		}

		moved := folder.Clone()
		moved.ParentID = &parentID
		moved.Name = node.Name
		moved.Version = folder.Version + 1
		moved.UpdatedAt = r.now
		if err := r.u.folderRepo.Update(ctx, moved, folder.Version); err != nil {
			return nil, err
		}
		live[moved.ID] = moved
		r.result.FoldersUpdated++
	}

	placed := make([]*foldersDomain.Folder, 0, len(live))
	for _, f := range live {
		placed = append(placed, f)
	}
	placedTree, err := foldersDomain.BuildTree(placed, rootID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", snapshotsDomain.ErrSnapshotInconsistent, err)
	}
	var extras []uuid.UUID
	for idx := 1; idx < placedTree.Len(); idx++ {
		if id := placedTree.Nodes[idx].FolderID; !r.target.Contains(id) {
			extras = append(extras, id)
		}
	}
	slices.Reverse(extras)
	return extras, nil
}

// placed reports whether folder already sits where target node idx wants it.
func (r *rollback) placed(folder *foldersDomain.Folder, idx int) bool {
	node := r.target.Nodes[idx]
	return folder.ParentID != nil &&
		*folder.ParentID == r.target.Nodes[node.Parent].FolderID &&
		folder.Name == node.Name
}

// restoreSecrets deletes live secrets the snapshot does not know and writes the
// captured content of every other one, recreating those that were deleted.
func (r *rollback) restoreSecrets(ctx context.Context, extras []uuid.UUID) error {
	secrets, err := r.u.secretRepo.ListByEnvironment(ctx, r.s.EnvironmentID)
	if err != nil {
		return err
	}
	inScope := folderSet(r.target.FolderIDs())
	for _, id := range extras {
		inScope[id] = struct{}{}
	}
	captured := make(map[uuid.UUID]*versionsDomain.SecretVersion, len(r.versions))
	for _, v := range r.versions {
		captured[v.SecretID] = v
	}

	live := make(map[uuid.UUID]*secretsDomain.Secret, len(secrets))
	for _, secret := range secrets {
		live[secret.ID] = secret
		if _, ok := inScope[secret.FolderID]; !ok {
			continue
		}
		if _, ok := captured[secret.ID]; ok {
			continue
		}
		if err := r.u.secretRepo.Delete(ctx, secret.ID, secret.Version); err != nil {
			return err
		}
		if _, err := r.u.versioning.RecordSecretDeletion(ctx, secret, r.s.Actor); err != nil {
			return err
		}
		delete(live, secret.ID)
		r.result.SecretsDeleted++
	}

	for _, v := range r.versions {
		secret, ok := live[v.SecretID]
		if !ok || v.SameContent(secret) || (secret.FolderID == v.FolderID && secret.BlindIndex == v.BlindIndex) {
			continue
		}
		parked := secret.Clone()
		parked.BlindIndex = fmt.Sprintf("~%x", secret.ID[:15])
		if err := r.u.secretRepo.Update(ctx, parked, secret.Version); err != nil {
			return err
		}
	}

	for _, v := range r.versions {
		secret, ok := live[v.SecretID]
		if ok {
			if v.SameContent(secret) {
				continue
			}
			restored := v.Secret(secret.Version + 1)
			restored.CreatedAt = secret.CreatedAt
			restored.UpdatedAt = r.now
			if err := r.u.secretRepo.Update(ctx, restored, secret.Version); err != nil {
				return err
			}
			if _, err := r.u.versioning.RecordSecretVersion(ctx, restored, r.s.Actor); err != nil {
				return err
			}
			r.result.SecretsUpdated++
			continue
		}

		latest, err := r.u.versioning.LatestSecretVersion(ctx, v.SecretID)
		if err != nil {
			return err
		}
		restored := v.Secret(latest.Version + 1)
		restored.CreatedAt = r.now
		restored.UpdatedAt = r.now
		if err := r.u.secretRepo.Create(ctx, restored); err != nil {
			return err
		}
		if _, err := r.u.versioning.RecordSecretVersion(ctx, restored, r.s.Actor); err != nil {
			return err
		}
		r.result.SecretsCreated++
	}
	return nil
}

// deleteFolders removes the folders the snapshot does not know. restoreSecrets
// has already emptied them.
func (r *rollback) deleteFolders(ctx context.Context, extras []uuid.UUID) error {
	for _, id := range extras {
		if err := r.u.folderRepo.Delete(ctx, id); err != nil {
			return err
		}
		r.result.FoldersDeleted++
	}
	return nil
}
