package assim

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
)

// ColumnShard is one column's central-row analysis, ready to be
// scattered into every member's state vector: Positions[i] is the
// global state-vector position Values[i] belongs to, and Values[i] has
// one entry per ensemble member.
type ColumnShard struct {
	LatIdx, LonIdx int
	Positions      []int
	Values         [][]float64
}

// IOError reports a failure reading or writing a scratch shard.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("assim: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func shardFileName(ensnum, corenum int, tsTag string, latIdx, lonIdx int) string {
	return fmt.Sprintf("ens_%d_core_%d_time_%s_lat_%d_lon_%d.gob", ensnum, corenum, tsTag, latIdx, lonIdx)
}

func shardGlobPattern(dir, tsTag string) string {
	return filepath.Join(dir, fmt.Sprintf("ens_*_core_*_time_%s_lat_*_lon_*.gob", tsTag))
}

// WriteShard persists shard to scratchDir, keyed by (ensnum, corenum,
// tsTag, lat, lon) per the on-disk scratch shard naming convention,
// retrying transient filesystem errors with backoff.
func WriteShard(scratchDir string, ensnum, corenum int, tsTag string, shard *ColumnShard) error {
	path := filepath.Join(scratchDir, shardFileName(ensnum, corenum, tsTag, shard.LatIdx, shard.LonIdx))
	op := func() error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return gob.NewEncoder(f).Encode(shard)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)); err != nil {
		return &IOError{Path: path, Op: "write shard", Err: err}
	}
	return nil
}

// ReadShard reads back a shard written by WriteShard, retrying
// transient filesystem errors with backoff.
func ReadShard(path string) (*ColumnShard, error) {
	var shard ColumnShard
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return gob.NewDecoder(f).Decode(&shard)
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)); err != nil {
		return nil, &IOError{Path: path, Op: "read shard", Err: err}
	}
	return &shard, nil
}
