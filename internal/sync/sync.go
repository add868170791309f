// Package sync reconciles configured deck sources with the card store and
// seeds scheduling state for newly discovered cards.
package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recallkit/recallkit/internal/deck"
	"github.com/recallkit/recallkit/internal/domain"
	"github.com/recallkit/recallkit/internal/gitsource"
	"github.com/recallkit/recallkit/internal/storage"
)

// Source type tokens as stored in the sources table.
const (
	TypeLocal = "local"
	TypeGit   = "git"
)

// DetectType classifies a source path as a git URL or a local directory.
func DetectType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return TypeGit
	}
	return TypeLocal
}

// Run iterates over all configured sources and reconciles each one. Git
// sources are mirrored under reposDir first. Per-source failures are
// logged and skipped so one broken source cannot block the rest.
func Run(db *storage.DB, reposDir string) error {
	slog.Info("starting sync for all sources")
	sources, err := db.GetAllSources()
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		scanPath := source.Path
		if source.Type == TypeGit {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(source.Path, localRepoPath); err != nil {
				slog.Error("error syncing git repo", "url", source.Path, "error", err)
				continue
			}
			scanPath = localRepoPath
		}

		reconcileSource(db, source, scanPath)
	}
	slog.Info("sync complete")
	return nil
}

// reconcileSource walks a source directory, upserts every parsed card,
// seeds memory states for cards new to the store, and removes cards that
// disappeared from the source.
func reconcileSource(db *storage.DB, source storage.Source, scanPath string) {
	now := time.Now().UTC()

	var parsed, seeded int
	var reconcileErrors []error
	foundHashes := make(map[string]bool)

	walkErr := filepath.WalkDir(scanPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := deck.ParseFile(path)
		if parseErr != nil {
			reconcileErrors = append(reconcileErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.Hash = deck.Hash(card)
			parsed++
			foundHashes[card.Hash] = true

			existing, findErr := db.FindCardByHash(card.Hash)
			if findErr != nil {
				reconcileErrors = append(reconcileErrors, fmt.Errorf("db check for %s: %w", card.Hash, findErr))
				continue
			}
			if upsertErr := db.UpsertCard(card, source.ID); upsertErr != nil {
				reconcileErrors = append(reconcileErrors, fmt.Errorf("db upsert for %s: %w", card.Hash, upsertErr))
				continue
			}
			if existing == nil {
				slog.Info("new card found, seeding learner states", "hash", card.Hash)
				if seedErr := db.SeedStatesForCard(card.Hash, now); seedErr != nil {
					reconcileErrors = append(reconcileErrors, fmt.Errorf("seeding states for %s: %w", card.Hash, seedErr))
					continue
				}
				seeded++
			}
		}
		return nil
	})

	if walkErr != nil {
		slog.Error("error walking directory", "path", scanPath, "error", walkErr)
		return
	}

	dbCards, err := db.GetCardsBySourceID(source.ID)
	if err != nil {
		slog.Error("error getting cards for source", "source_id", source.ID, "error", err)
		return
	}

	var orphaned int
	for _, dbCard := range dbCards {
		if !foundHashes[dbCard.Hash] {
			slog.Info("orphaned card, deleting", "hash", dbCard.Hash)
			orphaned++
			if err := db.DeleteCardByHash(dbCard.Hash); err != nil {
				slog.Warn("failed to delete orphaned card", "hash", dbCard.Hash, "error", err)
			}
		}
	}

	if err := db.UpdateSourceLastScanned(source.ID); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", scanPath,
		"parsed_cards", parsed,
		"new_cards", seeded,
		"orphaned_deleted", orphaned,
		"errors", len(reconcileErrors),
	)
}

// gitURLToLocalPath maps a git URL (https or scp-style) to a mirror path
// under baseDir.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("%w: could not parse git URL %s", domain.ErrInvalidArgument, repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
