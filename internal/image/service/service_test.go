package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ImageStore,RatingStore,UserLookup,Geocoder,FileStore,AuditPublisher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"realreview/internal/audit"
	"realreview/internal/audit/publisher"
	auditstore "realreview/internal/audit/store/memory"
	authmodels "realreview/internal/auth/models"
	userstore "realreview/internal/auth/store/user"
	"realreview/internal/filestore"
	"realreview/internal/geocoding"
	"realreview/internal/image/metrics"
	"realreview/internal/image/models"
	"realreview/internal/image/service/mocks"
	imagestore "realreview/internal/image/store/image"
	ratingstore "realreview/internal/image/store/rating"
	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/requestcontext"
)

const uploadDir = "/uploads"

type fakeGeocoder map[string]*geocoding.Location

func (f fakeGeocoder) Resolve(_ context.Context, address string) (*geocoding.Location, error) {
	if loc, ok := f[address]; ok {
		return loc, nil
	}
	return nil, geocoding.NewProviderError(geocoding.ErrorNotFound, "fake", "no results", nil)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ServiceSuite struct {
	suite.Suite
	clock     time.Time
	fs        afero.Fs
	users     *userstore.InMemoryUserStore
	images    *imagestore.InMemoryImageStore
	ratings   *ratingstore.InMemoryRatingStore
	publisher *publisher.Publisher
	metrics   *metrics.Metrics
	service   *Service

	owner *authmodels.User
	admin *authmodels.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.fs = afero.NewMemMapFs()
	files := filestore.New(s.fs, uploadDir)
	s.Require().NoError(files.Init())

	s.users = userstore.New()
	s.images = imagestore.New()
	s.ratings = ratingstore.New()
	s.publisher = publisher.New(auditstore.NewInMemoryStore(),
		publisher.WithForwarding(16),
		publisher.WithLogger(quietLogger()),
	)
	s.metrics = metrics.New(prometheus.NewRegistry())

	geo := fakeGeocoder{
		"10 Downing St": {FormattedAddress: "10 Downing St, London SW1A 2AA, UK", Latitude: 51.5034, Longitude: -0.1276},
		"Berlin":        {FormattedAddress: "Berlin, Germany", Latitude: 52.52, Longitude: 13.405},
	}
	s.service = New(s.images, s.ratings, s.users, geo, files,
		WithLogger(quietLogger()),
		WithMetrics(s.metrics),
		WithAudit(s.publisher),
	)

	s.owner = s.createUser("owner@example.com", id.RoleUser)
	s.admin = s.createUser("admin@example.com", id.RoleAdmin)
}

func (s *ServiceSuite) createUser(email string, role id.Role) *authmodels.User {
	user, err := authmodels.NewUser(id.NewUserID(), email, "hash", role, s.clock)
	s.Require().NoError(err)
	s.Require().NoError(s.users.CreateIfEmailAvailable(context.Background(), user))
	return user
}

// ctx advances the clock so successive uploads have distinct timestamps.
func (s *ServiceSuite) ctx() context.Context {
	s.clock = s.clock.Add(time.Minute)
	return requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.clock)
}

func (s *ServiceSuite) upload(address string) *models.Image {
	img, err := s.service.Upload(s.ctx(), s.owner.ID, UploadRequest{
		File:         bytes.NewReader([]byte("jpeg")),
		OriginalName: "house.jpg",
		Location:     address,
	})
	s.Require().NoError(err)
	return img
}

func (s *ServiceSuite) approved(address string) *models.Image {
	img := s.upload(address)
	s.Require().NoError(s.service.Approve(s.ctx(), img.ID, s.admin.ID))
	return img
}

func (s *ServiceSuite) storedFiles() []string {
	entries, err := afero.ReadDir(s.fs, uploadDir)
	s.Require().NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (s *ServiceSuite) drainForwarded() []*audit.ModerationEvent {
	var out []*audit.ModerationEvent
	for {
		select {
		case ev := <-s.publisher.Queue():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestUpload() {
	s.Run("stores a pending image at the resolved address", func() {
		img := s.upload("10 Downing St")

		s.True(img.IsPending())
		s.Equal("10 Downing St, London SW1A 2AA, UK", img.Location)
		s.InDelta(51.5034, img.Latitude, 1e-9)
		s.InDelta(-0.1276, img.Longitude, 1e-9)
		s.Equal(s.owner.ID, img.UploadedBy)
		s.Equal("house.jpg", img.OriginalName)
		s.Contains(s.storedFiles(), img.FileName)

		stored, err := s.images.FindByID(context.Background(), img.ID)
		s.Require().NoError(err)
		s.Equal(img.FileName, stored.FileName)

		forwarded := s.drainForwarded()
		s.Require().Len(forwarded, 1)
		s.Equal(audit.ActionUploaded, forwarded[0].Action)
		s.Equal("req-1", forwarded[0].RequestID)
		s.InDelta(1, testutil.ToFloat64(s.metrics.Uploads.WithLabelValues("success")), 0)
	})

	s.Run("unresolvable address leaves no record and no file", func() {
		before := s.storedFiles()

		_, err := s.service.Upload(s.ctx(), s.owner.ID, UploadRequest{
			File:         bytes.NewReader([]byte("jpeg")),
			OriginalName: "house.jpg",
			Location:     "nowhere at all",
		})
		s.requireCode(err, dErrors.CodeValidation)

		s.Equal(before, s.storedFiles())
		mine, err := s.service.ListMine(s.ctx(), s.owner.ID)
		s.Require().NoError(err)
		s.Len(mine, 1)
		s.Empty(s.drainForwarded())
		s.InDelta(1, testutil.ToFloat64(s.metrics.Uploads.WithLabelValues("invalid_location")), 0)
	})

	s.Run("missing location or file is a validation error", func() {
		_, err := s.service.Upload(s.ctx(), s.owner.ID, UploadRequest{File: bytes.NewReader(nil), Location: "  "})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Upload(s.ctx(), s.owner.ID, UploadRequest{Location: "Berlin"})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("unknown uploader", func() {
		_, err := s.service.Upload(s.ctx(), id.NewUserID(), UploadRequest{
			File:     bytes.NewReader([]byte("x")),
			Location: "Berlin",
		})
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestListApproved() {
	pending := s.upload("Berlin")
	older := s.approved("Berlin")
	newer := s.approved("10 Downing St")

	s.Run("only approved images, newest first", func() {
		views, err := s.service.ListApproved(s.ctx(), "", 0, 10)
		s.Require().NoError(err)
		s.Require().Len(views, 2)
		s.Equal(newer.ID, views[0].ID)
		s.Equal(older.ID, views[1].ID)
		for _, v := range views {
			s.NotEqual(pending.ID, v.ID)
		}
	})

	s.Run("pages by size", func() {
		first, err := s.service.ListApproved(s.ctx(), "", 0, 1)
		s.Require().NoError(err)
		second, err := s.service.ListApproved(s.ctx(), "", 1, 1)
		s.Require().NoError(err)
		third, err := s.service.ListApproved(s.ctx(), "", 2, 1)
		s.Require().NoError(err)

		s.Require().Len(first, 1)
		s.Require().Len(second, 1)
		s.Empty(third)
		s.Equal(newer.ID, first[0].ID)
		s.Equal(older.ID, second[0].ID)
	})

	s.Run("filters by exact location", func() {
		views, err := s.service.ListApproved(s.ctx(), "Berlin, Germany", 0, 0)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(older.ID, views[0].ID)
	})

	s.Run("carries the average rating", func() {
		_, err := s.service.Rate(s.ctx(), older.ID, s.owner.ID, 4)
		s.Require().NoError(err)
		_, err = s.service.Rate(s.ctx(), older.ID, s.admin.ID, 1)
		s.Require().NoError(err)

		views, err := s.service.ListApproved(s.ctx(), "Berlin, Germany", 0, 10)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.InDelta(2.5, views[0].AverageRating, 1e-9)
		s.Equal(2, views[0].RatingCount)
	})

	s.Run("rejects negative paging", func() {
		_, err := s.service.ListApproved(s.ctx(), "", -1, 10)
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.ListApproved(s.ctx(), "", 0, -5)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("rejects a page whose offset overflows", func() {
		s.NotPanics(func() {
			_, err := s.service.ListApproved(s.ctx(), "", math.MaxInt/50, 100)
			s.requireCode(err, dErrors.CodeValidation)
		})
		_, err := s.service.ListApproved(s.ctx(), "", math.MaxInt/MaxPageSize, 0)
		s.Require().NoError(err)
	})

	s.Run("oversized pages are clamped", func() {
		views, err := s.service.ListApproved(s.ctx(), "", 0, 5000)
		s.Require().NoError(err)
		s.Len(views, 2)
	})
}

func (s *ServiceSuite) TestGetDetails() {
	img := s.upload("Berlin")

	view, err := s.service.GetDetails(s.ctx(), img.ID)
	s.Require().NoError(err)
	s.Equal(img.ID, view.ID)
	s.Zero(view.AverageRating)

	_, err = s.service.GetDetails(s.ctx(), id.NewImageID())
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestApprove() {
	s.Run("requires an admin", func() {
		img := s.upload("Berlin")
		err := s.service.Approve(s.ctx(), img.ID, s.owner.ID)
		s.requireCode(err, dErrors.CodeForbidden)

		err = s.service.Approve(s.ctx(), img.ID, id.NewUserID())
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("unknown image", func() {
		err := s.service.Approve(s.ctx(), id.NewImageID(), s.admin.ID)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("is idempotent", func() {
		img := s.upload("Berlin")
		s.drainForwarded()

		s.Require().NoError(s.service.Approve(s.ctx(), img.ID, s.admin.ID))
		s.Require().NoError(s.service.Approve(s.ctx(), img.ID, s.admin.ID))

		history, err := s.service.History(s.ctx(), img.ID, s.admin.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(audit.ActionUploaded, history[0].Action)
		s.Equal(audit.ActionApproved, history[1].Action)
		s.Len(s.drainForwarded(), 1)
		s.InDelta(1, testutil.ToFloat64(s.metrics.Moderations.WithLabelValues("approved")), 0)
	})

	s.Run("clears an earlier rejection", func() {
		img := s.upload("Berlin")
		s.Require().NoError(s.service.Reject(s.ctx(), img.ID, s.admin.ID, "blurry"))
		s.Require().NoError(s.service.Approve(s.ctx(), img.ID, s.admin.ID))

		view, err := s.service.GetDetails(s.ctx(), img.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, view.Status())
		s.False(view.Rejected)
	})
}

func (s *ServiceSuite) TestReject() {
	s.Run("removes the image from the queue", func() {
		img := s.upload("Berlin")
		s.Require().NoError(s.service.Reject(s.ctx(), img.ID, s.admin.ID, "not a property"))

		pending, err := s.service.ListPending(s.ctx(), s.admin.ID)
		s.Require().NoError(err)
		for _, v := range pending {
			s.NotEqual(img.ID, v.ID)
		}
		public, err := s.service.ListApproved(s.ctx(), "", 0, 10)
		s.Require().NoError(err)
		s.Empty(public)

		history, err := s.service.History(s.ctx(), img.ID, s.admin.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(audit.ActionRejected, history[1].Action)
		s.Equal("not a property", history[1].Reason)
	})

	s.Run("approved images cannot be rejected", func() {
		img := s.approved("Berlin")
		err := s.service.Reject(s.ctx(), img.ID, s.admin.ID, "")
		s.requireCode(err, dErrors.CodeInvalidState)
	})

	s.Run("requires an admin", func() {
		img := s.upload("Berlin")
		err := s.service.Reject(s.ctx(), img.ID, s.owner.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

func (s *ServiceSuite) TestListPending() {
	img := s.upload("Berlin")
	s.approved("Berlin")

	pending, err := s.service.ListPending(s.ctx(), s.admin.ID)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(img.ID, pending[0].ID)

	_, err = s.service.ListPending(s.ctx(), s.owner.ID)
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestRate() {
	img := s.approved("Berlin")

	s.Run("out of range values", func() {
		for _, v := range []int{0, 6, -1} {
			_, err := s.service.Rate(s.ctx(), img.ID, s.owner.ID, v)
			s.requireCode(err, dErrors.CodeValidation)
		}
	})

	s.Run("re-rating replaces the earlier value", func() {
		first, err := s.service.Rate(s.ctx(), img.ID, s.owner.ID, 3)
		s.Require().NoError(err)
		second, err := s.service.Rate(s.ctx(), img.ID, s.owner.ID, 5)
		s.Require().NoError(err)

		s.Equal(first.ID, second.ID)
		s.Equal(5, second.Value)
		ratings, err := s.service.ListRatings(s.ctx(), img.ID)
		s.Require().NoError(err)
		s.Len(ratings, 1)

		avg, err := s.service.AverageFor(s.ctx(), img.ID)
		s.Require().NoError(err)
		s.InDelta(5, avg, 1e-9)
		s.InDelta(1, testutil.ToFloat64(s.metrics.RatingsSubmitted.WithLabelValues("created")), 0)
		s.InDelta(1, testutil.ToFloat64(s.metrics.RatingsSubmitted.WithLabelValues("updated")), 0)
	})

	s.Run("averages across users", func() {
		other := s.createUser("other@example.com", id.RoleUser)
		_, err := s.service.Rate(s.ctx(), img.ID, other.ID, 2)
		s.Require().NoError(err)
		_, err = s.service.Rate(s.ctx(), img.ID, s.admin.ID, 2)
		s.Require().NoError(err)

		avg, err := s.service.AverageFor(s.ctx(), img.ID)
		s.Require().NoError(err)
		s.InDelta(3, avg, 1e-9)
	})

	s.Run("pending images can be rated", func() {
		pending := s.upload("Berlin")
		_, err := s.service.Rate(s.ctx(), pending.ID, s.owner.ID, 4)
		s.NoError(err)
	})

	s.Run("unknown image or user", func() {
		_, err := s.service.Rate(s.ctx(), id.NewImageID(), s.owner.ID, 4)
		s.requireCode(err, dErrors.CodeNotFound)

		_, err = s.service.Rate(s.ctx(), img.ID, id.NewUserID(), 4)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestAverageForUnratedImage() {
	img := s.upload("Berlin")

	avg, err := s.service.AverageFor(s.ctx(), img.ID)
	s.Require().NoError(err)
	s.Zero(avg)

	_, err = s.service.AverageFor(s.ctx(), id.NewImageID())
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestHistoryRequiresAdmin() {
	img := s.upload("Berlin")

	_, err := s.service.History(s.ctx(), img.ID, s.owner.ID)
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.service.History(s.ctx(), id.NewImageID(), s.admin.ID)
	s.requireCode(err, dErrors.CodeNotFound)
}

type collaborators struct {
	images  *mocks.MockImageStore
	ratings *mocks.MockRatingStore
	users   *mocks.MockUserLookup
	geo     *mocks.MockGeocoder
	files   *mocks.MockFileStore
	audit   *mocks.MockAuditPublisher
}

func newMocked(t *testing.T) (*Service, collaborators) {
	ctrl := gomock.NewController(t)
	c := collaborators{
		images:  mocks.NewMockImageStore(ctrl),
		ratings: mocks.NewMockRatingStore(ctrl),
		users:   mocks.NewMockUserLookup(ctrl),
		geo:     mocks.NewMockGeocoder(ctrl),
		files:   mocks.NewMockFileStore(ctrl),
		audit:   mocks.NewMockAuditPublisher(ctrl),
	}
	svc := New(c.images, c.ratings, c.users, c.geo, c.files,
		WithLogger(quietLogger()),
		WithAudit(c.audit),
	)
	return svc, c
}

func TestUploadCollaboratorFailures(t *testing.T) {
	ctx := context.Background()
	owner := &authmodels.User{ID: id.NewUserID(), Email: "o@example.com", Role: id.RoleUser}
	req := UploadRequest{File: bytes.NewReader([]byte("x")), OriginalName: "a.jpg", Location: "Berlin"}
	berlin := &geocoding.Location{FormattedAddress: "Berlin, Germany", Latitude: 52.52, Longitude: 13.405}

	t.Run("geocoder outage is an upstream error", func(t *testing.T) {
		svc, c := newMocked(t)
		c.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(owner, nil)
		c.geo.EXPECT().Resolve(gomock.Any(), "Berlin").
			Return(nil, geocoding.NewProviderError(geocoding.ErrorProviderOutage, "google", "HTTP 503", nil))

		_, err := svc.Upload(ctx, owner.ID, req)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeUpstream, dErrors.CodeOf(err))
	})

	t.Run("file write failure stores nothing", func(t *testing.T) {
		svc, c := newMocked(t)
		c.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(owner, nil)
		c.geo.EXPECT().Resolve(gomock.Any(), "Berlin").Return(berlin, nil)
		c.files.EXPECT().Save(gomock.Any(), gomock.Any(), "a.jpg").Return("", errors.New("disk full"))

		_, err := svc.Upload(ctx, owner.ID, req)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})

	t.Run("record failure removes the stored file", func(t *testing.T) {
		svc, c := newMocked(t)
		c.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(owner, nil)
		c.geo.EXPECT().Resolve(gomock.Any(), "Berlin").Return(berlin, nil)
		c.files.EXPECT().Save(gomock.Any(), gomock.Any(), "a.jpg").Return("1_abcdef01_a.jpg", nil)
		c.images.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))
		c.files.EXPECT().Delete("1_abcdef01_a.jpg").Return(nil)

		_, err := svc.Upload(ctx, owner.ID, req)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
	})
}

func TestModerationSkipsAuditWhenUnchanged(t *testing.T) {
	svc, c := newMocked(t)
	admin := &authmodels.User{ID: id.NewUserID(), Email: "a@example.com", Role: id.RoleAdmin}
	imageID := id.NewImageID()

	c.users.EXPECT().FindByID(gomock.Any(), admin.ID).Return(admin, nil)
	c.images.EXPECT().Approve(gomock.Any(), imageID, gomock.Any()).Return(false, nil)

	require.NoError(t, svc.Approve(context.Background(), imageID, admin.ID))
}

func TestListingFailsWhenAverageFails(t *testing.T) {
	svc, c := newMocked(t)
	img := &models.Image{ID: id.NewImageID(), FileName: "f.jpg", Approved: true}

	c.images.EXPECT().ListApproved(gomock.Any(), "", 0, DefaultPageSize).Return([]*models.Image{img}, nil)
	c.ratings.EXPECT().AverageFor(gomock.Any(), img.ID).Return(0.0, 0, errors.New("timeout"))

	_, err := svc.ListApproved(context.Background(), "", 0, 0)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}
