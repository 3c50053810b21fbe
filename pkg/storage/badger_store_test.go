package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devseo/siteaudit/pkg/models"
	"github.com/devseo/siteaudit/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewBadgerStore(ctx, dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testJob(id string, startedAt time.Time) models.CrawlJob {
	return models.CrawlJob{
		ID:        id,
		Domain:    "example.com",
		MaxPages:  50,
		Status:    models.JobStatusPending,
		StartedAt: startedAt,
	}
}

func testRecord(jobID, pageURL string) models.PageRecord {
	return models.PageRecord{
		ID:         "pr-" + pageURL,
		CrawlJobID: jobID,
		PageAnalysis: models.PageAnalysis{
			URL:        pageURL,
			StatusCode: 200,
			Title:      "Fixture page",
			Issues:     []models.Issue{},
			SEOScore:   80,
		},
	}
}

func testRec(id, jobID, title string) models.Recommendation {
	return models.Recommendation{
		ID:                   id,
		CrawlJobID:           jobID,
		Type:                 models.RecTypeOnPage,
		Title:                title,
		Description:          "Fixture recommendation",
		Priority:             models.PriorityMedium,
		ImplementationStatus: models.ImplementationPending,
	}
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("results survive reopen", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, logger)
		require.NoError(t, err)
		require.NoError(t, store1.SaveJob(testJob("job-1", time.Now())))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		got, err := store2.GetJob("job-1")
		require.NoError(t, err)
		assert.Equal(t, "example.com", got.Domain)
	})

	t.Run("creates missing state directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "state")
		store, err := NewBadgerStore(context.Background(), dir, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		assert.DirExists(t, filepath.Join(dir, resultsDBDir))
	})
}

func TestSaveAndGetJob(t *testing.T) {
	store := newTestStore(t)

	t.Run("full round-trip all fields survive", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		completed := now.Add(90 * time.Second)
		job := models.CrawlJob{
			ID:           "job-roundtrip",
			Domain:       "docs.example.com",
			MaxPages:     120,
			Status:       models.JobStatusCompleted,
			PagesCrawled: 37,
			PagesTotal:   37,
			StartedAt:    now,
			CompletedAt:  &completed,
		}
		require.NoError(t, store.SaveJob(job))

		got, err := store.GetJob("job-roundtrip")
		require.NoError(t, err)
		assert.Equal(t, "docs.example.com", got.Domain)
		assert.Equal(t, 120, got.MaxPages)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, 37, got.PagesCrawled)
		assert.Equal(t, 37, got.PagesTotal)
		assert.Equal(t, now.UTC(), got.StartedAt.UTC())
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, completed.UTC(), got.CompletedAt.UTC())
	})

	t.Run("save overwrites existing", func(t *testing.T) {
		job := testJob("job-dup", time.Now())
		require.NoError(t, store.SaveJob(job))
		job.MaxPages = 200
		require.NoError(t, store.SaveJob(job))

		got, err := store.GetJob("job-dup")
		require.NoError(t, err)
		assert.Equal(t, 200, got.MaxPages)
	})

	t.Run("missing job returns not found", func(t *testing.T) {
		_, err := store.GetJob("job-missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})
}

func TestUpdateJob(t *testing.T) {
	store := newTestStore(t)

	t.Run("existing job updated", func(t *testing.T) {
		job := testJob("job-upd", time.Now())
		require.NoError(t, store.SaveJob(job))

		job.Status = models.JobStatusRunning
		job.PagesCrawled = 12
		require.NoError(t, store.UpdateJob(job))

		got, err := store.GetJob("job-upd")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusRunning, got.Status)
		assert.Equal(t, 12, got.PagesCrawled)
	})

	t.Run("unknown job returns not found", func(t *testing.T) {
		err := store.UpdateJob(testJob("job-ghost", time.Now()))
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrNotFound)

		// The failed update must not create the job either
		_, err = store.GetJob("job-ghost")
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})
}

func TestListJobs(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		jobs, err := store.ListJobs()
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("most recently started first", func(t *testing.T) {
		store := newTestStore(t)
		base := time.Now().Truncate(time.Millisecond)
		require.NoError(t, store.SaveJob(testJob("job-old", base.Add(-2*time.Hour))))
		require.NoError(t, store.SaveJob(testJob("job-new", base)))
		require.NoError(t, store.SaveJob(testJob("job-mid", base.Add(-1*time.Hour))))

		jobs, err := store.ListJobs()
		require.NoError(t, err)
		ids := make([]string, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		assert.Equal(t, []string{"job-new", "job-mid", "job-old"}, ids)
	})

	t.Run("corrupted entry skipped", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.SaveJob(testJob("job-good", time.Now())))

		// Write raw invalid JSON bytes directly
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(jobKey("job-bad"), []byte("{invalid json")))
		})
		require.NoError(t, err)

		jobs, err := store.ListJobs()
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-good", jobs[0].ID)
	})
}

func TestPageRecords(t *testing.T) {
	t.Run("list for unknown job is empty", func(t *testing.T) {
		store := newTestStore(t)
		records, err := store.ListPageRecords("job-ghost")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("saving zero records is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.SavePageRecords("job-a", nil))
		records, err := store.ListPageRecords("job-a")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("crawl order preserved", func(t *testing.T) {
		store := newTestStore(t)
		// More than ten records, so unpadded keys would list 0,1,10,11,2,...
		var saved []models.PageRecord
		for i := range 12 {
			saved = append(saved, testRecord("job-a", fmt.Sprintf("https://example.com/page-%d", i)))
		}
		require.NoError(t, store.SavePageRecords("job-a", saved))

		records, err := store.ListPageRecords("job-a")
		require.NoError(t, err)
		require.Len(t, records, 12)
		for i, record := range records {
			assert.Equal(t, fmt.Sprintf("https://example.com/page-%d", i), record.URL)
		}
	})

	t.Run("jobs are isolated", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.SavePageRecords("job-a", []models.PageRecord{
			testRecord("job-a", "https://a.example.com/"),
		}))
		require.NoError(t, store.SavePageRecords("job-b", []models.PageRecord{
			testRecord("job-b", "https://b.example.com/1"),
			testRecord("job-b", "https://b.example.com/2"),
		}))

		aRecords, err := store.ListPageRecords("job-a")
		require.NoError(t, err)
		require.Len(t, aRecords, 1)
		assert.Equal(t, "https://a.example.com/", aRecords[0].URL)

		bRecords, err := store.ListPageRecords("job-b")
		require.NoError(t, err)
		assert.Len(t, bRecords, 2)
	})

	t.Run("analysis fields survive the round-trip", func(t *testing.T) {
		store := newTestStore(t)
		record := testRecord("job-rt", "https://example.com/deep")
		record.H1Tags = []string{"Deep dive"}
		record.OGTags = map[string]string{"og:title": "Deep"}
		record.Issues = []models.Issue{{
			Type:       "thin_content",
			Severity:   models.SeverityWarning,
			Message:    "Page has only 120 words of content",
			Suggestion: "Add more quality content",
		}}
		record.SEOScore = 63
		require.NoError(t, store.SavePageRecords("job-rt", []models.PageRecord{record}))

		records, err := store.ListPageRecords("job-rt")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, record, records[0])
	})
}

func TestRecommendations(t *testing.T) {
	t.Run("generation order preserved", func(t *testing.T) {
		store := newTestStore(t)
		recs := []models.Recommendation{
			testRec("rec-1", "job-a", "Missing Title Tag"),
			testRec("rec-2", "job-a", "Thin Content"),
			testRec("rec-3", "job-a", "Missing Canonical Tag"),
		}
		require.NoError(t, store.SaveRecommendations("job-a", recs))

		got, err := store.ListRecommendations("job-a")
		require.NoError(t, err)
		assert.Equal(t, recs, got)
	})

	t.Run("status update targets one recommendation", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.SaveRecommendations("job-a", []models.Recommendation{
			testRec("rec-a1", "job-a", "Missing Title Tag"),
			testRec("rec-a2", "job-a", "Thin Content"),
		}))
		require.NoError(t, store.SaveRecommendations("job-b", []models.Recommendation{
			testRec("rec-b1", "job-b", "Slow Page Load"),
		}))

		require.NoError(t, store.UpdateRecommendationStatus("rec-a2", models.ImplementationCompleted))

		aRecs, err := store.ListRecommendations("job-a")
		require.NoError(t, err)
		require.Len(t, aRecs, 2)
		assert.Equal(t, models.ImplementationPending, aRecs[0].ImplementationStatus)
		assert.Equal(t, models.ImplementationCompleted, aRecs[1].ImplementationStatus)

		bRecs, err := store.ListRecommendations("job-b")
		require.NoError(t, err)
		require.Len(t, bRecs, 1)
		assert.Equal(t, models.ImplementationPending, bRecs[0].ImplementationStatus)
	})

	t.Run("unknown recommendation returns not found", func(t *testing.T) {
		store := newTestStore(t)
		err := store.UpdateRecommendationStatus("rec-missing", models.ImplementationDismissed)
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.SaveRecommendations("job-a", []models.Recommendation{
			testRec("rec-1", "job-a", "Missing Title Tag"),
		}))

		err := store.UpdateRecommendationStatus("rec-1", models.ImplementationStatus("archived"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid implementation status")

		// Stored value must be unchanged
		recs, err := store.ListRecommendations("job-a")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, models.ImplementationPending, recs[0].ImplementationStatus)
	})
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		done := make(chan struct{})
		go func() {
			store.runGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
			// success
		case <-time.After(2 * time.Second):
			t.Fatal("runGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("normal close", func(t *testing.T) {
		store, err := NewBadgerStore(context.Background(), t.TempDir(), testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("double close does not panic", func(t *testing.T) {
		store, err := NewBadgerStore(context.Background(), t.TempDir(), testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close()) // second close should be safe
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
