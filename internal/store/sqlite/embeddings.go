package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"
)

// GetEmbedding returns the stored vector for id, if any. Vectors are packed
// as consecutive little-endian float32s, a compact encoding well suited to
// SQLite BLOB storage and avoiding a JSON-of-floats round-trip.
func (d *DB) GetEmbedding(ctx context.Context, id string) (string, []float32, bool, error) {
	var model string
	var blob []byte
	err := d.execerFor(ctx).QueryRowContext(ctx, `SELECT model, vector FROM embeddings WHERE entry_id = ?`, id).
		Scan(&model, &blob)
	if err == sql.ErrNoRows {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	return model, decodeVector(blob), true, nil
}

func (d *DB) SetEmbedding(ctx context.Context, id string, model string, vector []float32) error {
	blob := encodeVector(vector)
	run := func(ex execer) error {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO embeddings (entry_id, model, vector, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(entry_id) DO UPDATE SET model = excluded.model, vector = excluded.vector,
				updated_at = excluded.updated_at`,
			id, model, blob, time.Now().UTC())
		return err
	}
	if d.inTx(ctx) {
		return run(d.txFromCtx(ctx))
	}
	return d.withWriteLock(func() error { return run(d.db) })
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out
}
