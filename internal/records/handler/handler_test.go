package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medledger/internal/records/handler/mocks"
	"medledger/internal/records/models"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/testutil"
)

const credential = "0x00000000000000000000000000000000000000A1"

const owner id.ParticipantID = "0x00000000000000000000000000000000000000a1"

type RecordsHandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	resolver *mocks.MockResolver
	router   chi.Router
}

func TestRecordsHandlerSuite(t *testing.T) {
	suite.Run(t, new(RecordsHandlerSuite))
}

func (s *RecordsHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.resolver = mocks.NewMockResolver(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, s.resolver, logger).Register(s.router)
}

func (s *RecordsHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RecordsHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	return testutil.ServeAs(s.T(), s.router, credential, method, path, body)
}

func (s *RecordsHandlerSuite) expectResolve() {
	s.resolver.EXPECT().Resolve(gomock.Any(), credential).Return(owner, nil)
}

func sampleRecord() *models.Record {
	return &models.Record{
		ID:                1,
		Owner:             owner,
		ArtifactReference: "cid:bafy",
		Metadata:          `{"kind":"lab"}`,
		CreatedAt:         time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Seq:               1,
	}
}

func (s *RecordsHandlerSuite) TestCreate() {
	s.Run("creates a record owned by the caller", func() {
		s.expectResolve()
		s.service.EXPECT().Create(gomock.Any(), owner, "cid:bafy", `{"kind":"lab"}`).Return(sampleRecord(), nil)

		rr := s.do(http.MethodPost, "/records", `{"artifact_reference":" cid:bafy ","metadata":"{\"kind\":\"lab\"}"}`)

		s.Equal(http.StatusCreated, rr.Code)
		var resp RecordResponse
		s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
		s.Equal(uint64(1), resp.ID)
		s.Equal(string(owner), resp.Owner)
		s.Equal("cid:bafy", resp.ArtifactReference)
	})

	s.Run("missing artifact reference is rejected before the service", func() {
		s.expectResolve()

		rr := s.do(http.MethodPost, "/records", `{"metadata":"x"}`)

		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), "invalid_input")
	})

	s.Run("unknown fields are rejected", func() {
		s.expectResolve()

		rr := s.do(http.MethodPost, "/records", `{"artifact_reference":"cid:x","owner":"0xevil"}`)

		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("unresolved identity is 401", func() {
		s.resolver.EXPECT().Resolve(gomock.Any(), credential).
			Return(id.ParticipantID(""), dErrors.New(dErrors.CodeUnresolvedIdentity, "no credential supplied"))

		rr := s.do(http.MethodPost, "/records", `{"artifact_reference":"cid:x"}`)

		s.Equal(http.StatusUnauthorized, rr.Code)
		s.Contains(rr.Body.String(), "unresolved_identity")
	})

	s.Run("substrate failure is 503", func() {
		s.expectResolve()
		s.service.EXPECT().Create(gomock.Any(), owner, "cid:x", "").
			Return(nil, dErrors.New(dErrors.CodeSubstrateUnavailable, "ledger substrate unavailable"))

		rr := s.do(http.MethodPost, "/records", `{"artifact_reference":"cid:x"}`)

		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}

func (s *RecordsHandlerSuite) TestGet() {
	s.Run("returns the record", func() {
		s.expectResolve()
		s.service.EXPECT().Get(gomock.Any(), id.RecordID(1)).Return(sampleRecord(), nil)

		rr := s.do(http.MethodGet, "/records/1", "")

		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `"artifact_reference":"cid:bafy"`)
	})

	s.Run("malformed id is 400", func() {
		s.expectResolve()

		rr := s.do(http.MethodGet, "/records/abc", "")

		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("missing record is 404", func() {
		s.expectResolve()
		s.service.EXPECT().Get(gomock.Any(), id.RecordID(9)).Return(nil, dErrors.New(dErrors.CodeNotFound, "record not found"))

		rr := s.do(http.MethodGet, "/records/9", "")

		s.Equal(http.StatusNotFound, rr.Code)
		s.JSONEq(`{"error":"not_found","error_description":"record not found"}`, rr.Body.String())
	})
}

func (s *RecordsHandlerSuite) TestListMine() {
	s.expectResolve()
	s.service.EXPECT().ListByOwner(gomock.Any(), owner).Return([]*models.Record{sampleRecord()}, nil)

	rr := s.do(http.MethodGet, "/records", "")

	s.Equal(http.StatusOK, rr.Code)
	var resp RecordListResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Len(resp.Records, 1)

	s.Run("empty list is an empty array", func() {
		s.expectResolve()
		s.service.EXPECT().ListByOwner(gomock.Any(), owner).Return(nil, nil)

		rr := s.do(http.MethodGet, "/records", "")
		s.JSONEq(`{"records":[]}`, rr.Body.String())
	})
}
