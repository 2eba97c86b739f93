package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead-allocation/internal/kvstore"
	"lead-allocation/internal/models"
)

const recordsKey = "ocr_records"

// Recorder appends captures to a JSON array kept under one store key.
type Recorder struct {
	store kvstore.Store
	mu    sync.Mutex
	now   func() time.Time
}

func NewRecorder(store kvstore.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

func (r *Recorder) List(ctx context.Context) ([]models.OCRRecord, error) {
	raw, ok, err := r.store.Get(ctx, recordsKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", recordsKey, err)
	}
	records := []models.OCRRecord{}
	if !ok || raw == "" {
		return records, nil
	}
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", recordsKey, err)
	}
	return records, nil
}

// Save appends a record and returns it with ID and timestamp set.
// Appends from this process are serialized; concurrent writers on a
// shared backend can still lose updates.
func (r *Recorder) Save(ctx context.Context, imageURI string, fields []models.Field) (models.OCRRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.List(ctx)
	if err != nil {
		return models.OCRRecord{}, err
	}
	rec := models.OCRRecord{
		ID:       uuid.NewString(),
		ImageURI: imageURI,
		Fields:   append([]models.Field(nil), fields...),
		SavedAt:  r.now().UTC(),
	}
	records = append(records, rec)

	data, err := json.Marshal(records)
	if err != nil {
		return models.OCRRecord{}, err
	}
	if err := r.store.Set(ctx, recordsKey, string(data)); err != nil {
		return models.OCRRecord{}, fmt.Errorf("write %s: %w", recordsKey, err)
	}
	return rec, nil
}
