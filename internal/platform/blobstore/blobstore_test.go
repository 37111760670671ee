package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
)

func seedBlob(t *testing.T, store BlobStore, patientID, category, fileName, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    fileName,
		ContentType: "text/plain",
		PatientID:   patientID,
		Category:    category,
		CreatedBy:   "test-user",
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) BlobStore) {
	t.Run("upload and download", func(t *testing.T) {
		store := newStore(t)
		meta := seedBlob(t, store, "PAT-001", CategoryHistoryFile, "history.txt", "prior surgeries: none")

		if meta.ID == "" {
			t.Fatal("expected assigned blob id")
		}
		if meta.Size != int64(len("prior surgeries: none")) {
			t.Errorf("unexpected size %d", meta.Size)
		}
		if meta.Hash == "" {
			t.Error("expected content hash")
		}

		rc, got, err := store.Download(context.Background(), meta.ID)
		if err != nil {
			t.Fatalf("Download() error: %v", err)
		}
		defer rc.Close()

		data, _ := io.ReadAll(rc)
		if string(data) != "prior surgeries: none" {
			t.Errorf("unexpected content %q", data)
		}
		if got.FileName != "history.txt" {
			t.Errorf("unexpected file name %q", got.FileName)
		}
	})

	t.Run("download missing", func(t *testing.T) {
		store := newStore(t)
		if _, _, err := store.Download(context.Background(), "nope"); err != ErrBlobNotFound {
			t.Errorf("expected ErrBlobNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		meta := seedBlob(t, store, "PAT-001", CategoryReceipt, "receipt.txt", "Q 150.00")

		if err := store.Delete(context.Background(), meta.ID); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, err := store.GetMetadata(context.Background(), meta.ID); err != ErrBlobNotFound {
			t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
		}
		if err := store.Delete(context.Background(), meta.ID); err != ErrBlobNotFound {
			t.Errorf("expected ErrBlobNotFound on double delete, got %v", err)
		}
	})

	t.Run("list by patient with category filter", func(t *testing.T) {
		store := newStore(t)
		seedBlob(t, store, "PAT-001", CategoryHistoryFile, "a.txt", "a")
		seedBlob(t, store, "PAT-001", CategoryReceipt, "b.txt", "b")
		seedBlob(t, store, "PAT-002", CategoryHistoryFile, "c.txt", "c")

		all, total, err := store.ListByPatient(context.Background(), "PAT-001", "", 20, 0)
		if err != nil {
			t.Fatalf("ListByPatient() error: %v", err)
		}
		if total != 2 || len(all) != 2 {
			t.Errorf("expected 2 blobs for PAT-001, got total=%d len=%d", total, len(all))
		}

		history, total, err := store.ListByPatient(context.Background(), "PAT-001", CategoryHistoryFile, 20, 0)
		if err != nil {
			t.Fatalf("ListByPatient() error: %v", err)
		}
		if total != 1 || history[0].FileName != "a.txt" {
			t.Errorf("expected only a.txt, got total=%d", total)
		}
	})

	t.Run("rejects bad metadata", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upload(context.Background(), BlobMetadata{}, strings.NewReader("x"))
		if err != ErrMissingFileName {
			t.Errorf("expected ErrMissingFileName, got %v", err)
		}

		_, err = store.Upload(context.Background(), BlobMetadata{
			FileName: "f.bin", Category: "no-such-category",
		}, strings.NewReader("x"))
		if err != ErrInvalidCategory {
			t.Errorf("expected ErrInvalidCategory, got %v", err)
		}

		_, err = store.Upload(context.Background(), BlobMetadata{
			FileName: "f.exe", ContentType: "application/x-msdownload",
		}, strings.NewReader("x"))
		if err != ErrInvalidContentType {
			t.Errorf("expected ErrInvalidContentType, got %v", err)
		}
	})
}

func TestInMemoryBlobStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) BlobStore {
		return NewInMemoryBlobStore()
	})
}

func TestFSBlobStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) BlobStore {
		store, err := NewFSBlobStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFSBlobStore() error: %v", err)
		}
		return store
	})
}

func TestFSBlobStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFSBlobStore() error: %v", err)
	}
	meta := seedBlob(t, store, "PAT-010", CategoryCertificate, "cert.txt", "certificate bytes")

	reopened, err := NewFSBlobStore(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got, err := reopened.GetMetadata(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("GetMetadata() after reopen: %v", err)
	}
	if got.FileName != "cert.txt" {
		t.Errorf("unexpected file name %q", got.FileName)
	}
}
