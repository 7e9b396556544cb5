package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"colazione/internal/blob"
	"colazione/internal/infra/persistence/file"
	"colazione/pkg/domain"
)

const (
	exportRoot        = "exports/"
	exportStampLayout = "20060102T150405Z"
)

// ExportInfo describes one snapshot archive in the blob store.
type ExportInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Keys      []string  `json:"keys"`
	Size      int64     `json:"size_bytes"`
}

// Exporter copies full snapshots of the record store to a blob store and
// back. Archives use the same per-set JSON documents as the file backend.
type Exporter struct {
	svc   *Service
	blobs blob.Store
	newID func() string
}

// NewExporter binds an exporter to the service store and a blob store.
func NewExporter(svc *Service, blobs blob.Store) *Exporter {
	return &Exporter{svc: svc, blobs: blobs, newID: uuid.NewString}
}

func exportPrefix(id string) string { return exportRoot + id + "/" }

// Export writes every record set under exports/<timestamp>-<uuid>/. The
// snapshot is read inside one transaction over all sets, so it is consistent.
func (e *Exporter) Export(ctx context.Context) (ExportInfo, error) {
	var info ExportInfo
	err := e.svc.run(ctx, "export_snapshot", func(ctx context.Context) error {
		var snap Snapshot
		if _, err := e.svc.store.RunInTransaction(ctx, domain.AllRecordSets, func(tx Transaction) error {
			snap = Snapshot{
				Users:    tx.ListUsers(),
				Groups:   tx.ListGroups(),
				Menu:     tx.Menu(),
				Orders:   tx.Orders(),
				Payments: tx.Payments(),
			}
			return nil
		}); err != nil {
			return err
		}
		created := e.svc.now().UTC()
		id := created.Format(exportStampLayout) + "-" + e.newID()
		info = ExportInfo{ID: id, CreatedAt: created}
		for _, set := range domain.AllRecordSets {
			data, err := file.EncodeDocument(set, snap)
			if err != nil {
				return fmt.Errorf("encode %s: %w", set, err)
			}
			key := exportPrefix(id) + file.DocumentName(set)
			put, err := e.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"set": string(set), "export": id},
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
			info.Keys = append(info.Keys, put.Key)
			info.Size += put.Size
		}
		e.svc.logger.Info("snapshot exported", "export", id, "driver", e.blobs.Driver(), "bytes", info.Size)
		return nil
	})
	if err != nil {
		return ExportInfo{}, err
	}
	return info, nil
}

// List returns the archives in the blob store, newest first.
func (e *Exporter) List(ctx context.Context) ([]ExportInfo, error) {
	var out []ExportInfo
	err := e.svc.run(ctx, "list_exports", func(ctx context.Context) error {
		var err error
		out, err = e.list(ctx)
		return err
	})
	return out, err
}

func (e *Exporter) list(ctx context.Context) ([]ExportInfo, error) {
	objects, err := e.blobs.List(ctx, exportRoot)
	if err != nil {
		return nil, err
	}
	byID := map[string]*ExportInfo{}
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, exportRoot)
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" {
			continue
		}
		entry := byID[id]
		if entry == nil {
			entry = &ExportInfo{ID: id, CreatedAt: parseExportStamp(id, obj.LastModified)}
			byID[id] = entry
		}
		entry.Keys = append(entry.Keys, obj.Key)
		entry.Size += obj.Size
	}
	out := make([]ExportInfo, 0, len(byID))
	for _, entry := range byID {
		sort.Strings(entry.Keys)
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func parseExportStamp(id string, fallback time.Time) time.Time {
	stamp, _, _ := strings.Cut(id, "-")
	if t, err := time.Parse(exportStampLayout, stamp); err == nil {
		return t
	}
	return fallback.UTC()
}

// Restore loads an archive into an empty store in one transaction over every
// set. Imported records skip the cross-entity rules.
func (e *Exporter) Restore(ctx context.Context, id string) (Result, error) {
	var res Result
	err := e.svc.run(ctx, "restore_snapshot", func(ctx context.Context) error {
		id = strings.TrimSpace(id)
		if id == "" || strings.Contains(id, "/") {
			return domain.Validationf("invalid export id %q", id)
		}
		snap, err := e.load(ctx, id)
		if err != nil {
			return err
		}
		res, err = e.svc.transact(ctx, "restore_snapshot", domain.AllRecordSets, func(tx Transaction) error {
			current := Snapshot{
				Users:    tx.ListUsers(),
				Groups:   tx.ListGroups(),
				Menu:     tx.Menu(),
				Orders:   tx.Orders(),
				Payments: tx.Payments(),
			}
			if !current.Empty() {
				return domain.Conflictf("restore requires an empty store")
			}
			return tx.Restore(snap)
		})
		if err == nil {
			e.svc.logger.Info("snapshot restored", "export", id, "users", len(snap.Users), "groups", len(snap.Groups))
		}
		return err
	})
	return res, err
}

func (e *Exporter) load(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	found := 0
	for _, set := range domain.AllRecordSets {
		key := exportPrefix(id) + file.DocumentName(set)
		_, rc, err := e.blobs.Get(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch %s: %w", key, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", key, err)
		}
		found++
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if err := file.DecodeDocument(data, set, &snap); err != nil {
			return Snapshot{}, domain.Validationf("export %s: corrupt %s document: %v", id, set, err)
		}
	}
	if found == 0 {
		return Snapshot{}, domain.NotFoundf("export %q not found", id)
	}
	return snap, nil
}

// Prune deletes every archive except the keep newest and returns the removed ids.
func (e *Exporter) Prune(ctx context.Context, keep int) ([]string, error) {
	var removed []string
	err := e.svc.run(ctx, "prune_exports", func(ctx context.Context) error {
		if keep < 0 {
			return domain.Validationf("keep must not be negative")
		}
		exports, err := e.list(ctx)
		if err != nil {
			return err
		}
		if len(exports) <= keep {
			return nil
		}
		for _, entry := range exports[keep:] {
			for _, key := range entry.Keys {
				if _, err := e.blobs.Delete(ctx, key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
			}
			removed = append(removed, entry.ID)
		}
		e.svc.logger.Info("exports pruned", "removed", len(removed), "kept", keep)
		return nil
	})
	return removed, err
}
