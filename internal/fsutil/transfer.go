package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tphakala/corpusprep/internal/errors"
)

// Mode selects how a record reaches its destination
type Mode string

const (
	// ModeCopy leaves the source in place
	ModeCopy Mode = "copy"
	// ModeMove removes the source once the destination exists
	ModeMove Mode = "move"
)

// ParseMode converts a configuration value into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCopy:
		return ModeCopy, nil
	case ModeMove:
		return ModeMove, nil
	}
	return "", errors.Newf("invalid transfer mode %q: must be copy or move", s).
		Component("fsutil").
		Category(errors.CategoryValidation).
		Build()
}

// backupSuffix is appended to a destination that a transfer replaces, until
// the transaction commits or rolls back
const backupSuffix = ".corpusprep-bak"

type transferRecord struct {
	mode   Mode
	src    string
	dst    string
	backup string
	// cleared marks a directory set aside by ClearDir; only dst and backup
	// are used
	cleared bool
}

// Transaction applies copies and moves and remembers them, so a failed
// run can be undone with Rollback.
//
// A Transaction is not safe for concurrent use.
type Transaction struct {
	fs      afero.Fs
	records []transferRecord
}

// NewTransaction starts an empty transaction on fsys
func NewTransaction(fsys afero.Fs) *Transaction {
	return &Transaction{fs: fsys}
}

// Len returns the number of transfers applied so far
func (tx *Transaction) Len() int {
	return len(tx.records)
}

// Transfer copies or moves src to dst according to mode. The destination
// directory is created if needed.
func (tx *Transaction) Transfer(mode Mode, src, dst string) error {
	if err := EnsureDir(tx.fs, filepath.Dir(dst)); err != nil {
		return err
	}

	rec := transferRecord{mode: mode, src: src, dst: dst}
	if Exists(tx.fs, dst) {
		rec.backup = dst + backupSuffix
		if err := tx.fs.Rename(dst, rec.backup); err != nil {
			return errors.New(err).
				Component("fsutil").
				Category(errors.CategoryFileIO).
				Context("operation", "backup_destination").
				FileContext(dst).
				Build()
		}
	}

	var err error
	switch mode {
	case ModeMove:
		err = tx.move(src, dst)
	case ModeCopy:
		err = CopyFile(tx.fs, src, dst)
	default:
		err = errors.Newf("unsupported transfer mode %q", mode).
			Component("fsutil").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		if rec.backup != "" {
			_ = tx.fs.Rename(rec.backup, dst)
		}
		return err
	}

	tx.records = append(tx.records, rec)
	return nil
}

// ClearDir sets the contents of dir aside so the transfers that follow start
// from an empty folder. Commit discards the old contents, Rollback puts them
// back. A missing dir is not an error.
func (tx *Transaction) ClearDir(dir string) error {
	if !DirExists(tx.fs, dir) {
		return nil
	}
	backup := filepath.Clean(dir) + backupSuffix
	// A backup left by an interrupted run only holds stale output
	if err := tx.fs.RemoveAll(backup); err != nil {
		return errors.FileError(err, backup)
	}
	if err := tx.fs.Rename(dir, backup); err != nil {
		return errors.New(err).
			Component("fsutil").
			Category(errors.CategoryFileIO).
			Context("operation", "clear_destination").
			FileContext(dir).
			Build()
	}
	tx.records = append(tx.records, transferRecord{dst: dir, backup: backup, cleared: true})
	return nil
}

// move renames src to dst, falling back to copy and remove when a rename
// is not possible, e.g. across devices
func (tx *Transaction) move(src, dst string) error {
	renameErr := tx.fs.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if err := CopyFile(tx.fs, src, dst); err != nil {
		return errors.Join(renameErr, err)
	}
	if err := tx.fs.Remove(src); err != nil {
		_ = tx.fs.Remove(dst)
		return errors.FileError(err, src)
	}
	return nil
}

// Commit finalizes the transaction and discards the backups of replaced
// destinations
func (tx *Transaction) Commit() error {
	var errs []error
	for _, rec := range tx.records {
		if rec.backup == "" {
			continue
		}
		if rec.cleared {
			if err := tx.fs.RemoveAll(rec.backup); err != nil {
				errs = append(errs, fmt.Errorf("remove cleared %s: %w", rec.backup, err))
			}
			continue
		}
		if err := tx.fs.Remove(rec.backup); err != nil {
			errs = append(errs, fmt.Errorf("remove backup %s: %w", rec.backup, err))
		}
	}
	tx.records = nil
	return errors.Join(errs...)
}

// Rollback undoes every transfer in reverse order: moved records return to
// their source, copies are removed, and replaced destinations are restored.
// It keeps going after a failure and returns every error it met.
func (tx *Transaction) Rollback() error {
	var errs []error
	for i := len(tx.records) - 1; i >= 0; i-- {
		rec := tx.records[i]

		if rec.cleared {
			// Transfers into the folder were undone before this record
			if _, err := RemoveDirIfEmpty(tx.fs, rec.dst); err != nil {
				errs = append(errs, err)
				continue
			}
			if DirExists(tx.fs, rec.dst) {
				errs = append(errs, fmt.Errorf("restore cleared %s: folder is not empty", rec.dst))
				continue
			}
			if err := tx.fs.Rename(rec.backup, rec.dst); err != nil {
				errs = append(errs, fmt.Errorf("restore cleared %s: %w", rec.dst, err))
			}
			continue
		}

		switch rec.mode {
		case ModeMove:
			if err := EnsureDir(tx.fs, filepath.Dir(rec.src)); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := tx.move(rec.dst, rec.src); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", rec.src, err))
				continue
			}
		default:
			if err := tx.fs.Remove(rec.dst); err != nil {
				errs = append(errs, fmt.Errorf("remove copy %s: %w", rec.dst, err))
				continue
			}
		}

		if rec.backup != "" {
			if err := tx.fs.Rename(rec.backup, rec.dst); err != nil {
				errs = append(errs, fmt.Errorf("restore replaced %s: %w", rec.dst, err))
			}
		}
	}
	tx.records = nil
	return errors.Join(errs...)
}
