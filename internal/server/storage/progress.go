package storage

import (
	"bytes"
	"io"
)

// progressReader reports how far a request body has been read. The SDK may
// seek back and re-read the body on retries; only new high-water marks are
// reported, so progress never goes backwards.
type progressReader struct {
	r      *bytes.Reader
	total  int64
	high   int64
	report ProgressFunc
}

func newProgressReader(data []byte, report ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if pos := p.total - int64(p.r.Len()); pos > p.high {
		p.high = pos
		if p.report != nil {
			p.report(pos, p.total)
		}
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

var _ io.ReadSeeker = (*progressReader)(nil)
