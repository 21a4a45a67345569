//go:build integration

package database_test

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zatekoja/coursefeedback/backend/internal/adapters/database"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/coursefeedback/backend/pkg/config"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func newTestPostgresClient(t *testing.T) *postgres.Client {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "course_feedback_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	client, err := postgres.NewClient(cfg)
	require.NoError(t, err, "Failed to create postgres client")
	return client
}

// FeedbackStoreIntegrationTestSuite runs the adapters against a real Postgres
type FeedbackStoreIntegrationTestSuite struct {
	suite.Suite
	client    *postgres.Client
	feedbacks *database.FeedbackAdapter
	links     *database.SharingLinkAdapter
	ctx       context.Context
}

func (s *FeedbackStoreIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.client = newTestPostgresClient(s.T())
	require.NoError(s.T(), s.client.RunMigrations())

	s.feedbacks = database.NewFeedbackAdapter(s.client)
	s.links = database.NewSharingLinkAdapter(s.client)
}

func (s *FeedbackStoreIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *FeedbackStoreIntegrationTestSuite) SetupTest() {
	_, err := s.client.DB().ExecContext(s.ctx, "TRUNCATE course_feedback_shares, course_feedback")
	require.NoError(s.T(), err)
}

func (s *FeedbackStoreIntegrationTestSuite) rowCount() int {
	var n int
	require.NoError(s.T(), s.client.DB().QueryRowContext(s.ctx, "SELECT COUNT(*) FROM course_feedback").Scan(&n))
	return n
}

func (s *FeedbackStoreIntegrationTestSuite) submit(courseKey, userID, blockID string, approved, consent bool) *entities.Feedback {
	f, err := s.feedbacks.Upsert(s.ctx, repositories.UpsertFeedbackParams{
		CourseKey:      courseKey,
		UserID:         userID,
		BlockID:        blockID,
		Rating:         intPtr(4),
		ConsentToShare: consent,
	})
	require.NoError(s.T(), err)
	if approved {
		require.NoError(s.T(), s.feedbacks.SetApproval(s.ctx, f.ID, true))
	}
	return f
}

func (s *FeedbackStoreIntegrationTestSuite) TestUpsert_OneRowPerNaturalKey() {
	first, err := s.feedbacks.Upsert(s.ctx, repositories.UpsertFeedbackParams{
		CourseKey:      "course-v1:EBC+101",
		UserID:         "42",
		BlockID:        "block-a",
		BlockName:      strPtr("Lesson 1"),
		Rating:         intPtr(3),
		Message:        strPtr("Clear explanations"),
		ConsentToShare: true,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.feedbacks.SetApproval(s.ctx, first.ID, true))

	time.Sleep(10 * time.Millisecond)

	second, err := s.feedbacks.Upsert(s.ctx, repositories.UpsertFeedbackParams{
		CourseKey:      "course-v1:EBC+101",
		UserID:         "42",
		BlockID:        "block-a",
		ConsentToShare: false,
	})
	s.Require().NoError(err)

	s.Equal(1, s.rowCount())
	s.Equal(first.ID, second.ID)

	// omitted rating and message keep the stored values
	s.Require().NotNil(second.Rating)
	s.Equal(3, *second.Rating)
	s.Require().NotNil(second.Message)
	s.Equal("Clear explanations", *second.Message)

	// block name and consent always overwrite
	s.Nil(second.BlockName)
	s.False(second.ConsentToShare)

	// approval and creation time belong to the first write
	s.True(second.IsApproved)
	s.True(second.CreatedAt.Equal(first.CreatedAt))
	s.True(second.ModifiedAt.After(first.ModifiedAt))
}

func (s *FeedbackStoreIntegrationTestSuite) TestUpsert_SuppliedFieldsOverwrite() {
	s.submit("course-a", "u1", "b1", false, true)

	updated, err := s.feedbacks.Upsert(s.ctx, repositories.UpsertFeedbackParams{
		CourseKey:      "course-a",
		UserID:         "u1",
		BlockID:        "b1",
		BlockName:      strPtr("Renamed"),
		Rating:         intPtr(1),
		Message:        strPtr("Too fast"),
		ConsentToShare: true,
	})
	s.Require().NoError(err)

	s.Equal(1, *updated.Rating)
	s.Equal("Too fast", *updated.Message)
	s.Equal("Renamed", *updated.BlockName)
	s.Equal(1, s.rowCount())
}

func (s *FeedbackStoreIntegrationTestSuite) TestUpsert_DistinctBlocksAreDistinctRecords() {
	s.submit("course-a", "u1", "b1", false, true)
	s.submit("course-a", "u1", "b2", false, true)
	s.submit("course-b", "u1", "b1", false, true)

	s.Equal(3, s.rowCount())
}

func (s *FeedbackStoreIntegrationTestSuite) TestFindEffective_Visibility() {
	own := s.submit("course-a", "u1", "b1", true, true)
	s.submit("course-a", "u2", "b1", false, true) // unapproved
	s.submit("course-a", "u3", "b1", true, false) // no consent

	sharedVisible := s.submit("course-b", "u4", "b1", true, true)
	sharedUnapproved := s.submit("course-b", "u5", "b1", false, true)
	sharedNoConsent := s.submit("course-b", "u6", "b1", true, false)
	notShared := s.submit("course-b", "u7", "b1", true, true)

	for _, f := range []*entities.Feedback{sharedVisible, sharedUnapproved, sharedNoConsent} {
		_, err := s.links.AddLink(s.ctx, f.ID, "course-a")
		s.Require().NoError(err)
	}

	effective, err := s.feedbacks.FindEffective(s.ctx, "course-a")
	s.Require().NoError(err)

	ids := make([]string, 0, len(effective))
	for _, f := range effective {
		s.True(f.PubliclyVisible())
		ids = append(ids, f.ID)
	}
	s.ElementsMatch([]string{own.ID, sharedVisible.ID}, ids)
	s.NotContains(ids, notShared.ID)

	// revoking approval removes a shared record from every view
	_, err = s.feedbacks.ToggleApproval(s.ctx, sharedVisible.ID)
	s.Require().NoError(err)

	effective, err = s.feedbacks.FindEffective(s.ctx, "course-a")
	s.Require().NoError(err)
	s.Len(effective, 1)
	s.Equal(own.ID, effective[0].ID)
}

func (s *FeedbackStoreIntegrationTestSuite) TestToggleApproval_ConcurrentTogglesAreNotLost() {
	f := s.submit("course-a", "u1", "b1", false, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.feedbacks.ToggleApproval(s.ctx, f.ID)
			s.NoError(err)
		}()
	}
	wg.Wait()

	stored, err := s.feedbacks.GetByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.False(stored.IsApproved)

	_, err = s.feedbacks.ToggleApproval(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.True(apperrors.IsNotFound(err))
}

func (s *FeedbackStoreIntegrationTestSuite) TestAddLink_DuplicateIsConflict() {
	f := s.submit("course-a", "u1", "b1", true, true)

	_, err := s.links.AddLink(s.ctx, f.ID, "course-b")
	s.Require().NoError(err)

	_, err = s.links.AddLink(s.ctx, f.ID, "course-b")
	s.True(apperrors.IsConflict(err))

	keys, err := s.links.ListLinksFor(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal([]string{"course-b"}, keys)

	s.Require().NoError(s.links.RemoveLink(s.ctx, f.ID, "course-b"))
	s.Require().NoError(s.links.RemoveLink(s.ctx, f.ID, "course-b"))
}

func (s *FeedbackStoreIntegrationTestSuite) TestFind_UserSearchIsLiteral() {
	s.submit("course-a", "ann_lee", "b1", false, true)
	s.submit("course-a", "annxlee", "b1", false, true)
	s.submit("course-a", "100%real", "b1", false, true)

	found, err := s.feedbacks.Find(s.ctx, repositories.FeedbackFilter{UserQuery: "ann_"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("ann_lee", found[0].UserID)

	found, err = s.feedbacks.Find(s.ctx, repositories.FeedbackFilter{UserQuery: "0%r"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("100%real", found[0].UserID)
}

func TestFeedbackStoreIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(FeedbackStoreIntegrationTestSuite))
}
