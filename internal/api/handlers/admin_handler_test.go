package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/coursefeedback/backend/internal/api/handlers"
	"github.com/zatekoja/coursefeedback/backend/internal/application/services"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) ListForReview(ctx context.Context, filter repositories.FeedbackFilter) ([]*entities.FeedbackReportRow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeedbackReportRow), args.Error(1)
}

func (m *MockReviewService) ToggleApproval(ctx context.Context, ids []string) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

func (m *MockReviewService) SetApproval(ctx context.Context, id string, approved bool) error {
	return m.Called(ctx, id, approved).Error(0)
}

func (m *MockReviewService) ExportSelected(ctx context.Context, ids []string, format services.ExportFormat) (*services.ExportFile, error) {
	args := m.Called(ctx, ids, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExportFile), args.Error(1)
}

func (m *MockReviewService) ExportFiltered(ctx context.Context, filter repositories.FeedbackFilter, format services.ExportFormat) (*services.ExportFile, error) {
	args := m.Called(ctx, filter, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExportFile), args.Error(1)
}

type MockLinkService struct {
	mock.Mock
}

func (m *MockLinkService) AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error) {
	args := m.Called(ctx, feedbackID, courseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SharingLink), args.Error(1)
}

func (m *MockLinkService) RemoveLink(ctx context.Context, feedbackID, courseKey string) error {
	return m.Called(ctx, feedbackID, courseKey).Error(0)
}

func (m *MockLinkService) ListLinksFor(ctx context.Context, feedbackID string) ([]string, error) {
	args := m.Called(ctx, feedbackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockLinkService) SetLinks(ctx context.Context, feedbackID string, courseKeys []string) ([]string, error) {
	args := m.Called(ctx, feedbackID, courseKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

const testFeedbackID = "4b9ad0a8-7f38-4f0e-9d35-3c55ad1c1f01"

func TestAdminHandler_ListFeedback_Filters(t *testing.T) {
	review := new(MockReviewService)
	handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

	review.On("ListForReview", mock.Anything, mock.MatchedBy(func(f repositories.FeedbackFilter) bool {
		return f.CourseKey == "course-a" &&
			f.UserQuery == "ann" &&
			f.IsApproved != nil && !*f.IsApproved &&
			f.ConsentToShare != nil && *f.ConsentToShare &&
			f.Limit == 1000 && f.Offset == 20
	})).Return([]*entities.FeedbackReportRow{{
		Feedback:   &entities.Feedback{ID: testFeedbackID, CourseKey: "course-a", UserID: "ann"},
		CourseName: "Intro to Go",
		UserName:   "Ann Lee",
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/feedback?course_key=course-a&user=ann&approved=false&consent=true&limit=5000&offset=20", nil)
	w := httptest.NewRecorder()
	handler.ListFeedback(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Feedback []map[string]interface{} `json:"feedback"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 1, response.Count)
	assert.Equal(t, "Intro to Go", response.Feedback[0]["course_name"])
	assert.Equal(t, "-", response.Feedback[0]["rating_display"])
	review.AssertExpectations(t)
}

func TestAdminHandler_ListFeedback_BadQuery(t *testing.T) {
	for _, query := range []string{"approved=maybe", "consent=2x", "limit=0", "limit=x", "offset=-1"} {
		t.Run(query, func(t *testing.T) {
			review := new(MockReviewService)
			handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/feedback?"+query, nil)
			w := httptest.NewRecorder()
			handler.ListFeedback(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			review.AssertNotCalled(t, "ListForReview", mock.Anything, mock.Anything)
		})
	}
}

func TestAdminHandler_ToggleApproval(t *testing.T) {
	review := new(MockReviewService)
	handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

	review.On("ToggleApproval", mock.Anything, []string{testFeedbackID, "junk"}).Return(1, nil)

	body := `{"ids":["` + testFeedbackID + `","junk"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/feedback/actions/toggle-approval", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ToggleApproval(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"toggled":1}`, w.Body.String())

	t.Run("empty ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/feedback/actions/toggle-approval", strings.NewReader(`{"ids":[]}`))
		w := httptest.NewRecorder()
		handler.ToggleApproval(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_SetApproval(t *testing.T) {
	approvalRequest := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPut, "/api/admin/feedback/"+testFeedbackID+"/approval", strings.NewReader(body))
		req.SetPathValue("id", testFeedbackID)
		return req
	}

	t.Run("forces the flag", func(t *testing.T) {
		review := new(MockReviewService)
		handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)
		review.On("SetApproval", mock.Anything, testFeedbackID, false).Return(nil).Once()

		w := httptest.NewRecorder()
		handler.SetApproval(w, approvalRequest(`{"approved":false}`))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"`+testFeedbackID+`","approved":false}`, w.Body.String())
		review.AssertExpectations(t)
	})

	t.Run("approved is required", func(t *testing.T) {
		review := new(MockReviewService)
		handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

		w := httptest.NewRecorder()
		handler.SetApproval(w, approvalRequest(`{}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		review.AssertNotCalled(t, "SetApproval", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown record", func(t *testing.T) {
		review := new(MockReviewService)
		handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)
		review.On("SetApproval", mock.Anything, testFeedbackID, true).Return(apperrors.NewNotFoundError("feedback not found"))

		w := httptest.NewRecorder()
		handler.SetApproval(w, approvalRequest(`{"approved":true}`))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminHandler_ExportSelected(t *testing.T) {
	review := new(MockReviewService)
	handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

	file := &services.ExportFile{
		Filename:    services.ExportFormatXLSX.Filename(),
		ContentType: services.ExportFormatXLSX.ContentType(),
		Data:        []byte("PK-data"),
		Rows:        1,
	}
	review.On("ExportSelected", mock.Anything, []string{testFeedbackID}, services.ExportFormatXLSX).Return(file, nil)

	body := `{"ids":["` + testFeedbackID + `"],"format":"xlsx"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/feedback/actions/export", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ExportSelected(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Feedbacks.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, file.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "PK-data", w.Body.String())

	t.Run("unknown format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/feedback/actions/export", strings.NewReader(`{"ids":["x"],"format":"pdf"}`))
		w := httptest.NewRecorder()
		handler.ExportSelected(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_ExportFiltered(t *testing.T) {
	review := new(MockReviewService)
	handler := handlers.NewAdminHandler(review, new(MockLinkService), nil)

	review.On("ExportFiltered", mock.Anything, mock.MatchedBy(func(f repositories.FeedbackFilter) bool {
		return f.CourseKey == "course-a" && f.Limit == 0
	}), services.ExportFormatCSV).Return(&services.ExportFile{
		Filename:    "Feedbacks.csv",
		ContentType: "text/csv",
		Data:        []byte("Course ID\n"),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/feedback/export?course_key=course-a", nil)
	w := httptest.NewRecorder()
	handler.ExportFiltered(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Feedbacks.csv"`, w.Header().Get("Content-Disposition"))
	review.AssertExpectations(t)

	t.Run("bad format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/feedback/export?format=pdf", nil)
		w := httptest.NewRecorder()
		handler.ExportFiltered(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func linkRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/admin/feedback/"+testFeedbackID+"/links", strings.NewReader(body))
	req.SetPathValue("id", testFeedbackID)
	return req
}

func TestAdminHandler_Links(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("AddLink", mock.Anything, testFeedbackID, "course-b").
			Return(&entities.SharingLink{FeedbackID: testFeedbackID, CourseKey: "course-b"}, nil)

		w := httptest.NewRecorder()
		handler.AddLink(w, linkRequest(http.MethodPost, `{"course_key":"course-b"}`))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("add duplicate", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("AddLink", mock.Anything, testFeedbackID, "course-b").
			Return(nil, apperrors.NewDuplicateLinkError(testFeedbackID, "course-b"))

		w := httptest.NewRecorder()
		handler.AddLink(w, linkRequest(http.MethodPost, `{"course_key":"course-b"}`))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("list unknown feedback", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("ListLinksFor", mock.Anything, testFeedbackID).
			Return(nil, apperrors.NewNotFoundError("feedback not found"))

		w := httptest.NewRecorder()
		handler.ListLinks(w, linkRequest(http.MethodGet, ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("set", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("SetLinks", mock.Anything, testFeedbackID, []string{"course-b", "course-c"}).
			Return([]string{"course-b", "course-c"}, nil)

		w := httptest.NewRecorder()
		handler.SetLinks(w, linkRequest(http.MethodPut, `{"course_keys":["course-b","course-c"]}`))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"course_keys":["course-b","course-c"]`)
	})

	t.Run("remove", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("RemoveLink", mock.Anything, testFeedbackID, "course-b").Return(nil)

		req := linkRequest(http.MethodDelete, "")
		req.SetPathValue("courseKey", "course-b")
		w := httptest.NewRecorder()
		handler.RemoveLink(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		links.AssertExpectations(t)
	})

	t.Run("directory outage", func(t *testing.T) {
		links := new(MockLinkService)
		handler := handlers.NewAdminHandler(new(MockReviewService), links, nil)
		links.On("ListLinksFor", mock.Anything, testFeedbackID).
			Return(nil, apperrors.NewExternalError("course directory unavailable", nil))

		w := httptest.NewRecorder()
		handler.ListLinks(w, linkRequest(http.MethodGet, ""))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
