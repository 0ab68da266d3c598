package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

// stampLayout names record files; it sorts lexically in capture order.
const stampLayout = "20060102_150405.000000000"

const (
	snapshotsDir     = "snapshots"
	totalAccountsDir = "total_accounts"
	subscribersDir   = "premium_subscribers"
)

var (
	totalAccountsHeader = []string{"scraped_at", "total_accounts"}
	subscribersHeader   = []string{
		"scraped_at", "valid_memberships", "active_memberships",
		"trial_memberships", "canceled_memberships", "past_due_memberships",
	}
)

// FileStorage writes one record file per snapshot under a directory, either
// a JSON document per snapshot or the total_accounts/ and
// premium_subscribers/ CSV layout. Files are written to a temporary name
// and renamed into place, so readers only ever see complete files.
type FileStorage struct {
	dir    string
	format string
	mu     sync.RWMutex
	count  int
	logger *slog.Logger
}

// NewFileStorage creates a file storage rooted at dir. format is json or csv.
func NewFileStorage(dir, format string, logger *slog.Logger) (*FileStorage, error) {
	var subdirs []string
	switch format {
	case "json":
		subdirs = []string{snapshotsDir}
	case "csv":
		subdirs = []string{totalAccountsDir, subscribersDir}
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	return &FileStorage{
		dir:    dir,
		format: format,
		logger: logger.With("component", "file_storage", "format", format),
	}, nil
}

func (s *FileStorage) Name() string { return "file" }

func (s *FileStorage) Append(ctx context.Context, snap *types.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return storageErr("file", "append", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := snap.CapturedAt.UTC().Format(stampLayout)

	var err error
	switch s.format {
	case "json":
		if snap.IsEmpty() {
			return nil
		}
		err = s.writeJSON(stamp, snap)
	case "csv":
		err = s.writeCSV(stamp, snap)
	}
	if err != nil {
		return storageErr("file", "append", err)
	}

	s.count++
	s.logger.Debug("snapshot written", "stamp", stamp, "total", s.count)
	return nil
}

func (s *FileStorage) writeJSON(stamp string, snap *types.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return writeAtomic(filepath.Join(s.dir, snapshotsDir, "snapshot_"+stamp+".json"), data)
}

// writeCSV stages both record files before renaming either into place. If
// the second rename fails the first target is removed again, so a failed
// append leaves no half of the snapshot behind.
func (s *FileStorage) writeCSV(stamp string, snap *types.Snapshot) error {
	var staged []stagedFile
	defer func() {
		for _, f := range staged {
			os.Remove(f.tmp)
		}
	}()

	if rec := types.NewTotalAccountsRecord(snap); rec != nil {
		row := []string{formatTime(rec.ScrapedAt), strconv.FormatInt(rec.TotalAccounts, 10)}
		path := filepath.Join(s.dir, totalAccountsDir, "total_accounts_"+stamp+".csv")
		f, err := stage(path, encodeCSV(totalAccountsHeader, row))
		if err != nil {
			return err
		}
		staged = append(staged, f)
	}
	if rec := types.NewSubscriptionRecord(snap); rec != nil {
		row := []string{
			formatTime(rec.ScrapedAt),
			strconv.FormatInt(rec.ValidMemberships, 10),
			strconv.FormatInt(rec.ActiveMemberships, 10),
			strconv.FormatInt(rec.TrialMemberships, 10),
			strconv.FormatInt(rec.CanceledMemberships, 10),
			strconv.FormatInt(rec.PastDueMemberships, 10),
		}
		path := filepath.Join(s.dir, subscribersDir, "premium_subscribers_"+stamp+".csv")
		f, err := stage(path, encodeCSV(subscribersHeader, row))
		if err != nil {
			return err
		}
		staged = append(staged, f)
	}

	for i, f := range staged {
		if err := os.Rename(f.tmp, f.path); err != nil {
			for _, done := range staged[:i] {
				if rmErr := os.Remove(done.path); rmErr != nil {
					s.logger.Error("rollback failed", "path", done.path, "error", rmErr)
				}
			}
			return fmt.Errorf("commit %s: %w", filepath.Base(f.path), err)
		}
	}
	return nil
}

func (s *FileStorage) LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.format == "csv" {
		files, err := s.list(totalAccountsDir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, types.ErrNoSnapshot
		}
		row, err := readCSVRow(files[len(files)-1], len(totalAccountsHeader))
		if err != nil {
			return nil, storageErr("file", "latest_total_accounts", err)
		}
		return parseTotalRow(row)
	}

	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		if rec := types.NewTotalAccountsRecord(snaps[i]); rec != nil {
			return rec, nil
		}
	}
	return nil, types.ErrNoSnapshot
}

func (s *FileStorage) LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error) {
	recs, err := s.Subscriptions(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, types.ErrNoSnapshot
	}
	return &recs[len(recs)-1], nil
}

func (s *FileStorage) Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.SubscriptionRecord{}
	if s.format == "csv" {
		files, err := s.list(subscribersDir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			row, err := readCSVRow(f, len(subscribersHeader))
			if err != nil {
				return nil, storageErr("file", "subscriptions", err)
			}
			rec, err := parseSubscriptionRow(row)
			if err != nil {
				return nil, err
			}
			if types.InRange(rec.ScrapedAt, start, end) {
				out = append(out, *rec)
			}
		}
		return out, nil
	}

	snaps, err := s.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if rec := types.NewSubscriptionRecord(snap); rec != nil && types.InRange(rec.ScrapedAt, start, end) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// snapshots decodes every JSON snapshot in capture order.
func (s *FileStorage) snapshots(ctx context.Context) ([]*types.Snapshot, error) {
	files, err := s.list(snapshotsDir)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Snapshot, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, storageErr("file", "read", err)
		}
		var snap types.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, storageErr("file", "read", fmt.Errorf("decode %s: %w", filepath.Base(f), err))
		}
		out = append(out, &snap)
	}
	return out, nil
}

// list returns the record files of sub sorted by capture stamp.
func (s *FileStorage) list(sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, sub))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("file", "list", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(s.dir, sub, n)
	}
	return paths, nil
}

func (s *FileStorage) Close() error {
	s.logger.Info("file storage closing", "path", s.dir, "written", s.count)
	return nil
}

// stagedFile is a fully written temp file waiting to be renamed to path.
type stagedFile struct {
	tmp  string
	path string
}

// stage writes data to a hidden temp file in the target directory.
func stage(path string, data []byte) (stagedFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return stagedFile{}, fmt.Errorf("create temp file: %w", err)
	}
	f := stagedFile{tmp: tmp.Name(), path: path}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(f.tmp)
		return stagedFile{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(f.tmp)
		return stagedFile{}, fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(f.tmp)
		return stagedFile{}, err
	}
	return f, nil
}

// writeAtomic stages data and renames it over path.
func writeAtomic(path string, data []byte) error {
	f, err := stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(f.tmp, f.path); err != nil {
		os.Remove(f.tmp)
		return err
	}
	return nil
}

func encodeCSV(header, row []string) []byte {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write(header)
	w.Write(row)
	w.Flush()
	return []byte(b.String())
}

// readCSVRow returns the first data row of a record file.
func readCSVRow(path string, fields int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("decode %s: no data row", filepath.Base(path))
	}
	return records[1], nil
}

func parseTotalRow(row []string) (*types.TotalAccountsRecord, error) {
	at, err := parseTime(row[0])
	if err != nil {
		return nil, storageErr("file", "read", err)
	}
	v, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return nil, storageErr("file", "read", err)
	}
	return &types.TotalAccountsRecord{ScrapedAt: at, TotalAccounts: v}, nil
}

func parseSubscriptionRow(row []string) (*types.SubscriptionRecord, error) {
	at, err := parseTime(row[0])
	if err != nil {
		return nil, storageErr("file", "read", err)
	}
	vals := make([]int64, len(row)-1)
	for i, raw := range row[1:] {
		if vals[i], err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, storageErr("file", "read", err)
		}
	}
	return &types.SubscriptionRecord{
		ScrapedAt:           at,
		ValidMemberships:    vals[0],
		ActiveMemberships:   vals[1],
		TrialMemberships:    vals[2],
		CanceledMemberships: vals[3],
		PastDueMemberships:  vals[4],
	}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t.UTC(), err
}
