package agentfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// readBlocks implements spec.md §4.D read(ino, offset, length):
//  1. clamp length so offset+length <= size
//  2. for each covered block, fetch it or synthesize zeros for a hole
//  3. concatenate and slice to the requested range
func readBlocks(ctx context.Context, q querier, ino uint64, offset, length int64, size uint64, blockSize int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, errInvalid(Pread, "")
	}
	if offset >= int64(size) {
		return []byte{}, nil
	}
	if offset+length > int64(size) {
		length = int64(size) - offset
	}
	if length == 0 {
		return []byte{}, nil
	}

	startBlock := offset / int64(blockSize)
	endBlock := (offset + length - 1) / int64(blockSize)

	rows, err := q.QueryContext(ctx, `
		SELECT chunk_index, data FROM fs_data
		WHERE ino = ? AND chunk_index >= ? AND chunk_index <= ?
		ORDER BY chunk_index ASC
	`, ino, startBlock, endBlock)
	if err != nil {
		return nil, fmt.Errorf("agentfs: read: %w", err)
	}
	defer rows.Close()

	stored := make(map[int64][]byte)
	for rows.Next() {
		var idx int64
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("agentfs: read: %w", err)
		}
		stored[idx] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: read: %w", err)
	}

	out := make([]byte, 0, length)
	remaining := length
	pos := offset
	for blockIdx := startBlock; remaining > 0; blockIdx++ {
		blockStart := blockIdx * int64(blockSize)
		withinBlock := pos - blockStart
		take := int64(blockSize) - withinBlock
		if take > remaining {
			take = remaining
		}

		data, ok := stored[blockIdx]
		if !ok {
			out = append(out, make([]byte, take)...)
		} else if int64(len(data)) <= withinBlock {
			out = append(out, make([]byte, take)...)
		} else {
			avail := int64(len(data)) - withinBlock
			if avail > take {
				avail = take
			}
			out = append(out, data[withinBlock:withinBlock+avail]...)
			if avail < take {
				out = append(out, make([]byte, take-avail)...)
			}
		}

		remaining -= take
		pos += take
	}
	return out, nil
}

// writeBlocks implements spec.md §4.D write(ino, offset, data): a
// read-modify-write pass per covered block. Pure holes (blocks the write
// never touches) are never materialized — their absence is the hole.
func writeBlocks(ctx context.Context, tx *sql.Tx, ino uint64, offset int64, data []byte, blockSize int) error {
	if len(data) == 0 {
		return nil
	}
	if offset < 0 {
		return errInvalid(Pwrite, "")
	}

	selectStmt, err := tx.PrepareContext(ctx, "SELECT data FROM fs_data WHERE ino = ? AND chunk_index = ?")
	if err != nil {
		return fmt.Errorf("agentfs: write: %w", err)
	}
	defer selectStmt.Close()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fs_data (ino, chunk_index, data) VALUES (?, ?, ?)
		ON CONFLICT(ino, chunk_index) DO UPDATE SET data = excluded.data
	`)
	if err != nil {
		return fmt.Errorf("agentfs: write: %w", err)
	}
	defer upsertStmt.Close()

	startBlock := offset / int64(blockSize)
	endBlock := (offset + int64(len(data)) - 1) / int64(blockSize)

	for blockIdx := startBlock; blockIdx <= endBlock; blockIdx++ {
		blockStart := blockIdx * int64(blockSize)
		blockEnd := blockStart + int64(blockSize)

		dataStart := max64(0, blockStart-offset)
		dataEnd := min64(int64(len(data)), blockEnd-offset)
		writeOffset := max64(0, offset-blockStart)

		var existing []byte
		row := selectStmt.QueryRowContext(ctx, ino, blockIdx)
		switch err := row.Scan(&existing); {
		case err == nil:
		case errors.Is(err, sql.ErrNoRows):
			existing = nil
		default:
			return fmt.Errorf("agentfs: write: %w", err)
		}

		needed := writeOffset + (dataEnd - dataStart)
		var block []byte
		if int64(len(existing)) >= needed {
			block = existing
		} else {
			block = make([]byte, needed)
			copy(block, existing)
		}
		copy(block[writeOffset:], data[dataStart:dataEnd])

		if _, err := upsertStmt.ExecContext(ctx, ino, blockIdx, block); err != nil {
			return fmt.Errorf("agentfs: write: %w", err)
		}
	}
	return nil
}

// truncateBlocks implements spec.md §4.D truncate(ino, new_size).
func truncateBlocks(ctx context.Context, tx *sql.Tx, ino uint64, newSize uint64, blockSize int) error {
	if newSize == 0 {
		_, err := tx.ExecContext(ctx, "DELETE FROM fs_data WHERE ino = ?", ino)
		if err != nil {
			return fmt.Errorf("agentfs: truncate: %w", err)
		}
		return nil
	}

	lastBlock := int64((newSize - 1) / uint64(blockSize))
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM fs_data WHERE ino = ? AND chunk_index > ?", ino, lastBlock); err != nil {
		return fmt.Errorf("agentfs: truncate: %w", err)
	}

	keepLen := int((newSize - 1) % uint64(blockSize)) + 1
	if keepLen == blockSize {
		// last retained block is full-width; nothing to shorten.
		return nil
	}

	row := tx.QueryRowContext(ctx, "SELECT data FROM fs_data WHERE ino = ? AND chunk_index = ?", ino, lastBlock)
	var existing []byte
	switch err := row.Scan(&existing); {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return nil // last block was a hole; stays a hole.
	default:
		return fmt.Errorf("agentfs: truncate: %w", err)
	}
	if len(existing) <= keepLen {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE fs_data SET data = ? WHERE ino = ? AND chunk_index = ?", existing[:keepLen], ino, lastBlock); err != nil {
		return fmt.Errorf("agentfs: truncate: %w", err)
	}
	return nil
}

func deleteAllBlocks(ctx context.Context, tx *sql.Tx, ino uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM fs_data WHERE ino = ?", ino)
	if err != nil {
		return fmt.Errorf("agentfs: delete blocks: %w", err)
	}
	return nil
}

func copyBlocks(ctx context.Context, tx *sql.Tx, srcIno, destIno uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fs_data (ino, chunk_index, data)
		SELECT ?, chunk_index, data FROM fs_data WHERE ino = ? ORDER BY chunk_index ASC
	`, destIno, srcIno)
	if err != nil {
		return fmt.Errorf("agentfs: copy blocks: %w", err)
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
