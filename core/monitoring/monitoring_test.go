package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	errs    []error
	tags    []map[string]string
	flushed time.Duration
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recorder) Flush(d time.Duration) { r.flushed = d }

func TestGlobalMonitor(t *testing.T) {
	rec := &recorder{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	CaptureException(errors.New("boom"), map[string]string{"tender_id": "T1"})
	CaptureException(nil, nil)
	Flush(time.Second)

	assert.Len(t, rec.errs, 1)
	assert.Equal(t, "T1", rec.tags[0]["tender_id"])
	assert.Equal(t, time.Second, rec.flushed)

	Init(nil)
	CaptureException(errors.New("dropped"), nil)
	assert.Len(t, rec.errs, 1)
}
