package wxcrypt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ProgressFunc reports bytes processed out of the total. done == total on the
// final call.
type ProgressFunc func(done, total int64)

// DecryptFile decrypts an entire encrypted database into a plaintext copy at
// dst. The source is only ever read. The destination is written via a
// temporary file and renamed into place, so a cancelled or failed run never
// leaves a half-written database behind.
func DecryptFile(ctx context.Context, src, dst string, key []byte, progress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	total := info.Size()
	if total == 0 || total%PageSize != 0 {
		return fmt.Errorf("source size %d is not page-aligned: %w", total, ErrStoreCorrupt)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	reader := bufio.NewReaderSize(in, PageSize*16)
	writer := bufio.NewWriterSize(tmp, PageSize*16)

	page := make([]byte, PageSize)
	out := make([]byte, PageSize)
	var keys pageKeys

	pages := total / PageSize
	for pageNo := int64(0); pageNo < pages; pageNo++ {
		if pageNo%64 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if _, err := io.ReadFull(reader, page); err != nil {
			return fmt.Errorf("read page %d: %w", pageNo, err)
		}

		if pageNo == 0 {
			keys = deriveKeys(key, page[:SaltSize])
			if !keys.checkPage(page, 0) {
				return ErrDecryptionFailed
			}
		}
		if err := keys.decryptPage(page, out, pageNo); err != nil {
			return err
		}
		if _, err := writer.Write(out); err != nil {
			return fmt.Errorf("write page %d: %w", pageNo, err)
		}

		if progress != nil && (pageNo%256 == 255 || pageNo == pages-1) {
			progress((pageNo+1)*PageSize, total)
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
