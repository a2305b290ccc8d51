package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/relstore/internal/logging"
	"github.com/roach88/relstore/internal/rdberr"
)

// Backup writes a consistent copy of the store to dest. An existing file
// at dest is replaced.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if dest == "" {
		return rdberr.InvalidArgs("destName", "not empty")
	}
	s.queue.barrier()
	started := time.Now()
	err := s.backup(ctx, dest)
	observe("backup", started, err)
	return err
}

func (s *Store) backup(ctx context.Context, dest string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return rdberr.Inner(fmt.Errorf("failed to remove old backup: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return rdberr.FromSQLite(fmt.Errorf("backup failed: %w", err))
	}
	s.logger.Info("store backed up", zap.String("dest", logging.AnonymizePath(dest)))
	return nil
}

// Restore replaces the store's contents with the database at src. Only
// system callers may restore.
func (s *Store) Restore(ctx context.Context, src string) error {
	if src == "" {
		return rdberr.InvalidArgs("srcName", "not empty")
	}
	if !IsSystem(ctx) {
		return rdberr.NotSystemApp()
	}
	s.queue.barrier()
	started := time.Now()
	err := s.restore(ctx, src)
	observe("restore", started, err)
	return err
}

func (s *Store) restore(ctx context.Context, src string) error {
	if err := s.checkWritable(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return rdberr.InvalidFile(fmt.Errorf("backup file: %w", err))
	}

	srcDB, err := sql.Open("sqlite3", "file:"+src+"?mode=ro")
	if err != nil {
		return rdberr.Inner(fmt.Errorf("failed to open backup: %w", err))
	}
	defer srcDB.Close()

	if err := s.acquireGate(ctx); err != nil {
		return err
	}
	defer s.gate.Release(1)

	srcConn, err := srcDB.Conn(ctx)
	if err != nil {
		return rdberr.FromSQLite(err)
	}
	defer srcConn.Close()
	dstConn, err := s.db.Conn(ctx)
	if err != nil {
		return rdberr.FromSQLite(err)
	}
	defer dstConn.Close()

	err = dstConn.Raw(func(dstRaw any) error {
		return srcConn.Raw(func(srcRaw any) error {
			dst, ok := dstRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", dstRaw)
			}
			src, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", srcRaw)
			}
			bk, err := dst.Backup("main", src, "main")
			if err != nil {
				return err
			}
			done, err := bk.Step(-1)
			if err != nil {
				bk.Finish()
				return err
			}
			if !done {
				// Step reports a locked destination as not done.
				bk.Finish()
				return sqlite3.Error{Code: sqlite3.ErrBusy}
			}
			return bk.Finish()
		})
	})
	if err != nil {
		return rdberr.FromSQLite(fmt.Errorf("restore failed: %w", err))
	}

	// Cached statements were prepared against the old schema.
	s.stmts.purge()
	s.logger.Info("store restored", zap.String("src", logging.AnonymizePath(src)))
	return nil
}
