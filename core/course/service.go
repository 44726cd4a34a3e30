package course

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"github.com/trezcool/simplemooc/core"
)

var (
	// errors
	ErrNotFound             = errors.New("course not found")
	ErrLessonNotFound       = errors.New("lesson not found")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrAnnouncementNotFound = errors.New("announcement not found")
	ErrSlugExists           = errors.New("a course with this slug already exists")
	ErrAlreadyEnrolled      = errors.New("user is already enrolled in this course")
	ErrInvalidStatus        = errors.New("invalid enrollment status")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slg string, excludedCourses ...Course) error
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		// QueryCourses returns courses ordered by name. QueryFilter.Search does a
		// case-insensitive substring match on Course.Name or Course.Description;
		// a course matching on both fields is returned once.
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]Course, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)

		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// QueryCourseLessons returns a course's lessons ordered by number.
		QueryCourseLessons(ctx context.Context, courseID string) ([]Lesson, error)
		CreateMaterial(ctx context.Context, mat Material) (Material, error)
		QueryLessonMaterials(ctx context.Context, lessonID string) ([]Material, error)

		// CreateEnrollment fails with ErrAlreadyEnrolled when an enrollment for
		// the same (user, course) pair exists; the existing row is left untouched.
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		GetUserEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		QueryUserEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		// QueryCourseEnrollments returns a course's enrollments, optionally
		// restricted to a status, with the user's name and email joined in.
		QueryCourseEnrollments(ctx context.Context, courseID, status string) ([]Enrollment, error)
		UpdateEnrollmentStatus(ctx context.Context, id, status string) (Enrollment, error)

		CreateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		GetAnnouncement(ctx context.Context, id string) (Announcement, error)
		// QueryCourseAnnouncements returns a course's announcements, newest first.
		QueryCourseAnnouncements(ctx context.Context, courseID string) ([]Announcement, error)
		UpdateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		CreateComment(ctx context.Context, cmt Comment) (Comment, error)
		// QueryAnnouncementComments returns an announcement's comments, oldest first.
		QueryAnnouncementComments(ctx context.Context, announcementID string) ([]Comment, error)
	}

	Service interface {
		Create(nc NewCourse) (Course, error)
		Query(filter *QueryFilter) ([]Course, error)
		Search(query string) ([]Course, error)
		GetByID(id string) (Course, error)
		GetBySlug(slg string) (Course, error)
		Update(crs Course, uc UpdateCourse) (Course, error)

		AddLesson(crs Course, nl NewLesson) (Lesson, error)
		// Lessons lists a course's lessons in order; releasedOnly drops the
		// ones whose release date is unset or still in the future.
		Lessons(crs Course, releasedOnly bool) ([]Lesson, error)
		GetLesson(id string) (Lesson, error)
		AddMaterial(lsn Lesson, nm NewMaterial) (Material, error)
		Materials(lsn Lesson) ([]Material, error)

		Enroll(userID string, crs Course) (Enrollment, error)
		GetEnrollment(id string) (Enrollment, error)
		GetUserEnrollment(userID, courseID string) (Enrollment, error)
		UserEnrollments(userID string) ([]Enrollment, error)
		SetEnrollmentStatus(id, status string) (Enrollment, error)

		// Announce persists a new announcement for the course and fans out one
		// notification email per approved enrollee. The fan-out is
		// fire-and-forget: delivery failures never fail the announcement.
		Announce(crs Course, na NewAnnouncement) (Announcement, error)
		Announcements(crs Course) ([]Announcement, error)
		GetAnnouncement(id string) (Announcement, error)
		UpdateAnnouncement(ann Announcement, ua UpdateAnnouncement) (Announcement, error)
		AddComment(ann Announcement, userID string, nc NewComment) (Comment, error)
		Comments(ann Announcement) ([]Comment, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func (svc *service) checkSlugUniqueness(slg string, exclCourses ...Course) error {
	if err := svc.repo.CheckSlugUniqueness(context.Background(), slg, exclCourses...); err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return core.NewValidationError(err, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(nc NewCourse) (Course, error) {
	if nc.Slug == "" {
		nc.Slug = slug.Make(nc.Name)
	}
	if err := svc.checkSlugUniqueness(nc.Slug); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Name:        nc.Name,
		Slug:        nc.Slug,
		Description: nc.Description,
		About:       nc.About,
		StartDate:   nc.StartDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nc.Image != "" {
		crs.Image.SetValid(nc.Image)
	}
	return svc.repo.CreateCourse(context.Background(), crs)
}

func (svc *service) Query(filter *QueryFilter) ([]Course, error) {
	return svc.repo.QueryCourses(context.Background(), filter)
}

func (svc *service) Search(query string) ([]Course, error) {
	return svc.Query(&QueryFilter{Search: core.CleanString(query)})
}

func (svc *service) GetByID(id string) (Course, error) {
	return svc.repo.GetCourse(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetBySlug(slg string) (Course, error) {
	return svc.repo.GetCourse(context.Background(), GetFilter{Slug: core.CleanString(slg, true /* lower */)})
}

func (svc *service) Update(crs Course, uc UpdateCourse) (Course, error) {
	if uc.Name != "" {
		crs.Name = uc.Name
	}
	if uc.Description != "" {
		crs.Description = uc.Description
	}
	if uc.About != "" {
		crs.About = uc.About
	}
	if uc.StartDate.Valid {
		crs.StartDate = uc.StartDate
	}
	if uc.Image != "" {
		crs.Image.SetValid(uc.Image)
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(context.Background(), crs)
}

func (svc *service) AddLesson(crs Course, nl NewLesson) (Lesson, error) {
	lsn := Lesson{
		CourseID:    crs.ID,
		Name:        nl.Name,
		Description: nl.Description,
		Number:      nl.Number,
		ReleaseDate: nl.ReleaseDate,
	}
	return svc.repo.CreateLesson(context.Background(), lsn)
}

func (svc *service) Lessons(crs Course, releasedOnly bool) ([]Lesson, error) {
	lessons, err := svc.repo.QueryCourseLessons(context.Background(), crs.ID)
	if err != nil {
		return nil, err
	}
	if !releasedOnly {
		return lessons, nil
	}
	released := make([]Lesson, 0, len(lessons))
	for _, lsn := range lessons {
		if lsn.Released() {
			released = append(released, lsn)
		}
	}
	return released, nil
}

func (svc *service) GetLesson(id string) (Lesson, error) {
	return svc.repo.GetLesson(context.Background(), id)
}

func (svc *service) AddMaterial(lsn Lesson, nm NewMaterial) (Material, error) {
	mat := Material{
		LessonID: lsn.ID,
		Name:     nm.Name,
	}
	if nm.EmbeddedVideo != "" {
		mat.EmbeddedVideo.SetValid(nm.EmbeddedVideo)
	}
	if nm.File != "" {
		mat.File.SetValid(nm.File)
	}
	return svc.repo.CreateMaterial(context.Background(), mat)
}

func (svc *service) Materials(lsn Lesson) ([]Material, error) {
	return svc.repo.QueryLessonMaterials(context.Background(), lsn.ID)
}

// Enroll creates an approved enrollment for the user in the course.
// A duplicate (user, course) enrollment is rejected and the original kept.
func (svc *service) Enroll(userID string, crs Course) (Enrollment, error) {
	now := time.Now().UTC()
	enr := Enrollment{
		UserID:    userID,
		CourseID:  crs.ID,
		Status:    EnrollmentApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	enr, err := svc.repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, core.NewValidationError(err, core.FieldError{Field: "course", Error: ErrAlreadyEnrolled.Error()})
		}
		return Enrollment{}, err
	}
	return enr, nil
}

func (svc *service) GetEnrollment(id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(context.Background(), id)
}

func (svc *service) GetUserEnrollment(userID, courseID string) (Enrollment, error) {
	return svc.repo.GetUserEnrollment(context.Background(), userID, courseID)
}

func (svc *service) UserEnrollments(userID string) ([]Enrollment, error) {
	return svc.repo.QueryUserEnrollments(context.Background(), userID)
}

func (svc *service) SetEnrollmentStatus(id, status string) (Enrollment, error) {
	switch status {
	case EnrollmentPending, EnrollmentApproved, EnrollmentCancelled:
	default:
		return Enrollment{}, core.NewValidationError(ErrInvalidStatus, core.FieldError{Field: "status", Error: ErrInvalidStatus.Error()})
	}
	return svc.repo.UpdateEnrollmentStatus(context.Background(), id, status)
}

func (svc *service) Announce(crs Course, na NewAnnouncement) (Announcement, error) {
	now := time.Now().UTC()
	ann := Announcement{
		CourseID:  crs.ID,
		Title:     na.Title,
		Content:   na.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ann, err := svc.repo.CreateAnnouncement(context.Background(), ann)
	if err != nil {
		return Announcement{}, err
	}

	// notify enrollees only after the announcement is safely persisted
	svc.notifyEnrollees(crs, ann)
	return ann, nil
}

// notifyEnrollees mails the announcement to every approved enrollee of the
// course. One message per recipient; failures are logged and swallowed.
func (svc *service) notifyEnrollees(crs Course, ann Announcement) {
	enrollments, err := svc.repo.QueryCourseEnrollments(context.Background(), crs.ID, EnrollmentApproved)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("querying enrollees for announcement %s: %v", ann.ID, err), err)
		return
	}

	messages := make([]*core.EmailMessage, 0, len(enrollments))
	for _, enr := range enrollments {
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: enr.UserName, Address: enr.UserEmail}},
			Subject:      ann.Title,
			TemplateName: "announcement",
			TemplateData: struct {
				Course       Course
				Announcement Announcement
				Name         string
			}{crs, ann, enr.UserName},
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

func (svc *service) Announcements(crs Course) ([]Announcement, error) {
	return svc.repo.QueryCourseAnnouncements(context.Background(), crs.ID)
}

func (svc *service) GetAnnouncement(id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(context.Background(), id)
}

// UpdateAnnouncement edits an announcement in place; no notification is re-sent.
func (svc *service) UpdateAnnouncement(ann Announcement, ua UpdateAnnouncement) (Announcement, error) {
	if ua.Title != "" {
		ann.Title = ua.Title
	}
	if ua.Content != "" {
		ann.Content = ua.Content
	}
	ann.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAnnouncement(context.Background(), ann)
}

func (svc *service) AddComment(ann Announcement, userID string, nc NewComment) (Comment, error) {
	now := time.Now().UTC()
	cmt := Comment{
		AnnouncementID: ann.ID,
		UserID:         userID,
		Comment:        nc.Comment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateComment(context.Background(), cmt)
}

func (svc *service) Comments(ann Announcement) ([]Comment, error) {
	return svc.repo.QueryAnnouncementComments(context.Background(), ann.ID)
}
