package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/collabtext/realtime-docs/internal/document"
	"github.com/collabtext/realtime-docs/internal/logging"
)

// Archiver offloads VersionEntry snapshots evicted from a document's bounded
// in-record history to S3, completing the teacher's storage/s3.go stub
// (there a two-method shell with an empty SaveCanvasState body) into a real
// archive path generalized from "canvas state" to "document version
// snapshot". It implements ot.Archiver.
type Archiver struct {
	bucket     string
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	log        *logging.Logger
}

func NewArchiver(region, bucket string, log *logging.Logger) (*Archiver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &Archiver{
		bucket:     bucket,
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
		log:        log,
	}, nil
}

func snapshotKey(documentID string, version uint64) string {
	return fmt.Sprintf("documents/%s/history/%d.json", documentID, version)
}

// Archive uploads a JSON copy of entry, with ArchivedSnapshotKey set to its
// object key. The entry has already been trimmed from the record's history
// by the caller, and the record keeps no reference to the archived copy;
// Rehydrate fetches it by key. Upload
// failures are logged and swallowed: losing a cold-storage backup of an
// already-evicted entry does not affect document correctness (it only means
// that one old snapshot becomes unrecoverable), matching spec §7's "bus is an
// acceleration layer" treatment of non-critical-path failures.
func (a *Archiver) Archive(ctx context.Context, documentID string, entry document.VersionEntry) {
	key := snapshotKey(documentID, entry.Version)
	entry.ArchivedSnapshotKey = key

	body, err := json.Marshal(entry)
	if err != nil {
		a.log.Errorw("archive marshal failed", "document", documentID, "version", entry.Version, "error", err)
		return
	}

	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		a.log.Errorw("archive upload failed", "document", documentID, "version", entry.Version, "error", err)
	}
}

// Rehydrate fetches an archived snapshot body by key.
func (a *Archiver) Rehydrate(ctx context.Context, key string) (document.VersionEntry, error) {
	buf := aws.NewWriteAtBuffer(nil)
	_, err := a.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return document.VersionEntry{}, err
	}
	var entry document.VersionEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		return document.VersionEntry{}, err
	}
	return entry, nil
}
