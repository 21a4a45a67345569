package database_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
)

var feedbackColumnNames = []string{
	"id", "course_key", "user_id", "block_id", "block_name", "rating",
	"feedback", "consent_to_share", "is_approved", "created_at", "modified_at",
}

// queryLog records every statement sqlmock sees and matches by substring
type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) Match(expectedSQL, actualSQL string) error {
	l.mu.Lock()
	l.queries = append(l.queries, actualSQL)
	l.mu.Unlock()

	if !strings.Contains(actualSQL, expectedSQL) {
		return fmt.Errorf("query %q does not contain %q", actualSQL, expectedSQL)
	}
	return nil
}

func (l *queryLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queries) == 0 {
		return ""
	}
	return l.queries[len(l.queries)-1]
}

func setupMockClient(t *testing.T) (*postgres.Client, sqlmock.Sqlmock, *queryLog) {
	t.Helper()

	log := &queryLog{}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(log.Match)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return postgres.NewClientFromDB(db), mock, log
}

func feedbackRow(rows *sqlmock.Rows, id, courseKey, userID, blockID string, rating interface{}, approved, consent bool) *sqlmock.Rows {
	ts := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	return rows.AddRow(
		id, courseKey, userID, blockID, "Lesson 1", rating,
		"Clear explanations", consent, approved, ts, ts,
	)
}

func newFeedbackRows() *sqlmock.Rows {
	return sqlmock.NewRows(feedbackColumnNames)
}
