package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// ObjectPutter is the slice of the MinIO client the object sinks use.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStore writes each validated record as one JSON document in the lake
// bucket. The object key is derived from the source id, so re-delivery
// overwrites the same key: exactly one logical document per record.
type ObjectStore struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewObjectStore(client ObjectPutter, bucket, prefix string) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *ObjectStore) Write(ctx context.Context, batch []OutputRecord) error {
	for _, out := range batch {
		payload, err := EncodeOutput(out)
		if err != nil {
			return err
		}
		key := path.Join(s.prefix, "records", out.Record.SourceID()+".json")
		if err := s.put(ctx, key, payload); err != nil {
			return fmt.Errorf("write record %s: %w", out.Record.SourceID(), err)
		}
	}
	return nil
}

// ObjectQuarantine holds rejected records in a dedicated bucket for manual
// review, one document per record under the run id.
type ObjectQuarantine struct {
	client ObjectPutter
	bucket string
}

func NewObjectQuarantine(client ObjectPutter, bucket string) (*ObjectQuarantine, error) {
	if client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &ObjectQuarantine{client: client, bucket: bucket}, nil
}

func (q *ObjectQuarantine) Quarantine(ctx context.Context, runID string, rejected []RejectedRecord) error {
	for _, item := range rejected {
		payload, err := encodeRejected(item)
		if err != nil {
			return err
		}
		key := path.Join("runs", runID, item.Record.SourceID()+".json")
		if err := putObject(ctx, q.client, q.bucket, key, payload); err != nil {
			return fmt.Errorf("quarantine record %s: %w", item.Record.SourceID(), err)
		}
	}
	return nil
}

func encodeRejected(item RejectedRecord) ([]byte, error) {
	payload, err := EncodeOutput(OutputRecord{Record: item.Record, Indices: []domain.IndexResult{}})
	if err != nil {
		return nil, err
	}
	reasons := item.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	// Splice the rejection reasons into the document.
	var buf bytes.Buffer
	buf.Write(payload[:len(payload)-1])
	buf.WriteString(`,"reasons":`)
	writeJSON(&buf, reasons)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *ObjectStore) put(ctx context.Context, key string, payload []byte) error {
	return putObject(ctx, s.client, s.bucket, key, payload)
}

func putObject(ctx context.Context, client ObjectPutter, bucket, key string, payload []byte) error {
	_, err := client.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}
