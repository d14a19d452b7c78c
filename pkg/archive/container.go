package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// container appends files to one open archive stream.
type container interface {
	// add writes a single regular file. size is the number of bytes to copy from r.
	add(name string, info os.FileInfo, size int64, r io.Reader, buf []byte) error
	close() error
}

func newContainer(format Format, w io.Writer) (container, error) {
	switch format {
	case Zip:
		return newZipContainer(w), nil
	case TarGz:
		gz, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return &tarContainer{tw: tar.NewWriter(gz), compressed: gz}, nil
	case TarZst:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return &tarContainer{tw: tar.NewWriter(zw), compressed: zw}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

// Wrapper to return flate writer to pool on close
type pooledFlateWriter struct {
	*flate.Writer
	pool *sync.Pool
}

func (w *pooledFlateWriter) Close() error {
	err := w.Writer.Close()
	w.pool.Put(w.Writer)
	return err
}

type zipContainer struct {
	zw        *zip.Writer
	flatePool *sync.Pool
}

func newZipContainer(w io.Writer) *zipContainer {
	c := &zipContainer{
		zw: zip.NewWriter(w),
		flatePool: &sync.Pool{
			New: func() interface{} {
				fw, _ := flate.NewWriter(io.Discard, flate.DefaultCompression)
				return fw
			},
		},
	}
	c.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		fw := c.flatePool.Get().(*flate.Writer)
		fw.Reset(out)
		return &pooledFlateWriter{Writer: fw, pool: c.flatePool}, nil
	})
	return c
}

func (c *zipContainer) add(name string, info os.FileInfo, size int64, r io.Reader, buf []byte) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := c.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", name, err)
	}
	if _, err := io.CopyBuffer(w, io.LimitReader(r, size), buf); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}

func (c *zipContainer) close() error {
	if err := c.zw.Close(); err != nil {
		return fmt.Errorf("zip writer close failed: %w", err)
	}
	return nil
}

type tarContainer struct {
	tw         *tar.Writer
	compressed io.WriteCloser
}

func (c *tarContainer) add(name string, info os.FileInfo, size int64, r io.Reader, buf []byte) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	header.Name = name
	header.Size = size

	if err := c.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	// The header promised exactly size bytes; a short read leaves the stream corrupt.
	n, err := io.CopyBuffer(c.tw, io.LimitReader(r, size), buf)
	if err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	if n != size {
		return fmt.Errorf("file %s shrank while archiving: wrote %d of %d bytes", name, n, size)
	}
	return nil
}

func (c *tarContainer) close() error {
	if err := c.tw.Close(); err != nil {
		return fmt.Errorf("tar writer close failed: %w", err)
	}
	if err := c.compressed.Close(); err != nil {
		return fmt.Errorf("compressed writer close failed: %w", err)
	}
	return nil
}
