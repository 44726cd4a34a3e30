package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/simplemooc/core/course"
)

type courseRepository struct {
	db            *courseTable
	lessons       *lessonTable
	materials     *materialTable
	enrollments   *enrollmentTable
	announcements *announcementTable
	comments      *commentTable
	users         *userTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{
		db:            db.course,
		lessons:       db.lesson,
		materials:     db.material,
		enrollments:   db.enrollment,
		announcements: db.announcement,
		comments:      db.comment,
		users:         db.user,
	}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.table))
	for _, crs := range repo.db.table {
		courses = append(courses, *crs)
	}
	return courses
}

func (repo *courseRepository) CheckSlugUniqueness(_ context.Context, slg string, excludedCourses ...course.Course) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, crs := range repo.query() {
		if crs.Slug != slg {
			continue
		}
		excluded := false
		for _, excl := range excludedCourses {
			if excl.ID == crs.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return course.ErrSlugExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	repo.db.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := repo.query()

	// courses with search keyword matching Name or Description ?
	if filter != nil && !filter.IsEmpty() {
		var filtered []course.Course
		search := strings.ToLower(filter.Search)
		for _, crs := range courses {
			if strings.Contains(strings.ToLower(crs.Name), search) ||
				strings.Contains(strings.ToLower(crs.Description), search) {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].Name < courses[j].Name })
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, filter course.GetFilter) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if crs, ok := repo.db.table[filter.ID]; ok {
			return *crs, nil
		}
	case filter.Slug != "":
		for _, crs := range repo.query() {
			if crs.Slug == filter.Slug {
				return crs, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.lessons.Lock()
	defer repo.lessons.Unlock()

	lsn.ID = uuid.New().String()
	repo.lessons.table[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.lessons.RLock()
	defer repo.lessons.RUnlock()

	if lsn, ok := repo.lessons.table[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryCourseLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.lessons.RLock()
	defer repo.lessons.RUnlock()

	var lessons []course.Lesson
	for _, lsn := range repo.lessons.table {
		if lsn.CourseID == courseID {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Number < lessons[j].Number })
	return lessons, nil
}

func (repo *courseRepository) CreateMaterial(_ context.Context, mat course.Material) (course.Material, error) {
	repo.materials.Lock()
	defer repo.materials.Unlock()

	mat.ID = uuid.New().String()
	repo.materials.table[mat.ID] = &mat
	return mat, nil
}

func (repo *courseRepository) QueryLessonMaterials(_ context.Context, lessonID string) ([]course.Material, error) {
	repo.materials.RLock()
	defer repo.materials.RUnlock()

	var materials []course.Material
	for _, mat := range repo.materials.table {
		if mat.LessonID == lessonID {
			materials = append(materials, *mat)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].Name < materials[j].Name })
	return materials, nil
}

func (repo *courseRepository) CreateEnrollment(_ context.Context, enr course.Enrollment) (course.Enrollment, error) {
	repo.enrollments.Lock()
	defer repo.enrollments.Unlock()

	for _, existing := range repo.enrollments.table {
		if existing.UserID == enr.UserID && existing.CourseID == enr.CourseID {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
	}
	enr.ID = uuid.New().String()
	repo.enrollments.table[enr.ID] = &enr
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(_ context.Context, id string) (course.Enrollment, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()

	if enr, ok := repo.enrollments.table[id]; ok {
		return *enr, nil
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) GetUserEnrollment(_ context.Context, userID, courseID string) (course.Enrollment, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()

	for _, enr := range repo.enrollments.table {
		if enr.UserID == userID && enr.CourseID == courseID {
			return *enr, nil
		}
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *courseRepository) QueryUserEnrollments(_ context.Context, userID string) ([]course.Enrollment, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()

	var enrollments []course.Enrollment
	for _, enr := range repo.enrollments.table {
		if enr.UserID == userID {
			enrollments = append(enrollments, *enr)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt) })
	return enrollments, nil
}

func (repo *courseRepository) QueryCourseEnrollments(_ context.Context, courseID, status string) ([]course.Enrollment, error) {
	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var enrollments []course.Enrollment
	for _, enr := range repo.enrollments.table {
		if enr.CourseID != courseID {
			continue
		}
		if status != "" && enr.Status != status {
			continue
		}
		e := *enr
		if usr, ok := repo.users.table[enr.UserID]; ok {
			e.UserName = usr.Name
			e.UserEmail = usr.Email
		}
		enrollments = append(enrollments, e)
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt) })
	return enrollments, nil
}

func (repo *courseRepository) UpdateEnrollmentStatus(_ context.Context, id, status string) (course.Enrollment, error) {
	repo.enrollments.Lock()
	defer repo.enrollments.Unlock()

	enr, ok := repo.enrollments.table[id]
	if !ok {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	enr.Status = status
	enr.UpdatedAt = time.Now().UTC()
	return *enr, nil
}

func (repo *courseRepository) CreateAnnouncement(_ context.Context, ann course.Announcement) (course.Announcement, error) {
	repo.announcements.Lock()
	defer repo.announcements.Unlock()

	ann.ID = uuid.New().String()
	repo.announcements.table[ann.ID] = &ann
	return ann, nil
}

func (repo *courseRepository) GetAnnouncement(_ context.Context, id string) (course.Announcement, error) {
	repo.announcements.RLock()
	defer repo.announcements.RUnlock()

	if ann, ok := repo.announcements.table[id]; ok {
		return *ann, nil
	}
	return course.Announcement{}, course.ErrAnnouncementNotFound
}

func (repo *courseRepository) QueryCourseAnnouncements(_ context.Context, courseID string) ([]course.Announcement, error) {
	repo.announcements.RLock()
	defer repo.announcements.RUnlock()

	var announcements []course.Announcement
	for _, ann := range repo.announcements.table {
		if ann.CourseID == courseID {
			announcements = append(announcements, *ann)
		}
	}
	sort.Slice(announcements, func(i, j int) bool { return announcements[i].CreatedAt.After(announcements[j].CreatedAt) })
	return announcements, nil
}

func (repo *courseRepository) UpdateAnnouncement(_ context.Context, ann course.Announcement) (course.Announcement, error) {
	repo.announcements.Lock()
	defer repo.announcements.Unlock()

	if _, ok := repo.announcements.table[ann.ID]; !ok {
		return course.Announcement{}, course.ErrAnnouncementNotFound
	}
	repo.announcements.table[ann.ID] = &ann
	return ann, nil
}

func (repo *courseRepository) CreateComment(_ context.Context, cmt course.Comment) (course.Comment, error) {
	repo.comments.Lock()
	defer repo.comments.Unlock()

	cmt.ID = uuid.New().String()
	repo.comments.table[cmt.ID] = &cmt
	return cmt, nil
}

func (repo *courseRepository) QueryAnnouncementComments(_ context.Context, announcementID string) ([]course.Comment, error) {
	repo.comments.RLock()
	defer repo.comments.RUnlock()

	var comments []course.Comment
	for _, cmt := range repo.comments.table {
		if cmt.AnnouncementID == announcementID {
			comments = append(comments, *cmt)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}
