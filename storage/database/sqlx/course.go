package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/simplemooc/core/course"
)

type courseRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	Slug        string      `db:"slug"`
	Description string      `db:"description"`
	About       string      `db:"about"`
	StartDate   null.Time   `db:"start_date"`
	Image       null.String `db:"image"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		Description: row.Description,
		About:       row.About,
		StartDate:   row.StartDate,
		Image:       row.Image,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

type lessonRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Number      int       `db:"number"`
	ReleaseDate null.Time `db:"release_date"`
}

func (row lessonRow) toLesson() course.Lesson {
	return course.Lesson{
		ID:          row.ID,
		CourseID:    row.CourseID,
		Name:        row.Name,
		Description: row.Description,
		Number:      row.Number,
		ReleaseDate: row.ReleaseDate,
	}
}

type materialRow struct {
	ID            string      `db:"id"`
	LessonID      string      `db:"lesson_id"`
	Name          string      `db:"name"`
	EmbeddedVideo null.String `db:"embedded_video"`
	File          null.String `db:"file"`
}

func (row materialRow) toMaterial() course.Material {
	return course.Material{
		ID:            row.ID,
		LessonID:      row.LessonID,
		Name:          row.Name,
		EmbeddedVideo: row.EmbeddedVideo,
		File:          row.File,
	}
}

type enrollmentRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	CourseID  string      `db:"course_id"`
	Status    string      `db:"status"`
	CreatedAt null.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
	UserName  null.String `db:"user_name"`
	UserEmail null.String `db:"user_email"`
}

func (row enrollmentRow) toEnrollment() course.Enrollment {
	return course.Enrollment{
		ID:        row.ID,
		UserID:    row.UserID,
		CourseID:  row.CourseID,
		Status:    row.Status,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
		UserName:  row.UserName.String,
		UserEmail: row.UserEmail.String,
	}
}

type announcementRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	CreatedAt null.Time `db:"created_at"`
	UpdatedAt null.Time `db:"updated_at"`
}

func (row announcementRow) toAnnouncement() course.Announcement {
	return course.Announcement{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Title:     row.Title,
		Content:   row.Content,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

type commentRow struct {
	ID             string    `db:"id"`
	AnnouncementID string    `db:"announcement_id"`
	UserID         string    `db:"user_id"`
	Comment        string    `db:"comment"`
	CreatedAt      null.Time `db:"created_at"`
	UpdatedAt      null.Time `db:"updated_at"`
}

func (row commentRow) toComment() course.Comment {
	return course.Comment{
		ID:             row.ID,
		AnnouncementID: row.AnnouncementID,
		UserID:         row.UserID,
		Comment:        row.Comment,
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) CheckSlugUniqueness(ctx context.Context, slg string, excludedCourses ...course.Course) error {
	q := psql.Select("1").From("course").Where(sq.Eq{"slug": slg})
	if len(excludedCourses) > 0 {
		ids := make([]string, 0, len(excludedCourses))
		for _, crs := range excludedCourses {
			ids = append(ids, crs.ID)
		}
		q = q.Where(sq.NotEq{"id": ids})
	}
	query, args, err := q.Limit(1).ToSql()
	if err != nil {
		return errors.Wrap(err, "building slug uniqueness query")
	}
	var one int
	if err = repo.db.GetContext(ctx, &one, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking slug uniqueness")
	}
	return course.ErrSlugExists
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	query, args, err := psql.Insert("course").
		Columns("id", "name", "slug", "description", "about", "start_date", "image", "created_at", "updated_at").
		Values(crs.ID, crs.Name, crs.Slug, crs.Description, crs.About, crs.StartDate, crs.Image, crs.CreatedAt, crs.UpdatedAt).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return course.Course{}, course.ErrSlugExists
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	q := psql.Select("*").From("course")

	// courses with Name or Description matching the search keyword;
	// a course matching on both comes back once
	if filter != nil && !filter.IsEmpty() {
		val := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"description": val}})
	}
	q = q.OrderBy("name ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building courses query")
	}
	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	q := psql.Select("*").From("course")
	switch {
	case filter.ID != "":
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"slug": filter.Slug})
	default:
		return course.Course{}, course.ErrNotFound
	}

	query, args, err := q.ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course query")
	}
	var row courseRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	query, args, err := psql.Update("course").
		Set("name", crs.Name).
		Set("slug", crs.Slug).
		Set("description", crs.Description).
		Set("about", crs.About).
		Set("start_date", crs.StartDate).
		Set("image", crs.Image).
		Set("updated_at", crs.UpdatedAt.UTC()).
		Where(sq.Eq{"id": crs.ID}).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return crs, nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	lsn.ID = uuid.New().String()
	query, args, err := psql.Insert("lesson").
		Columns("id", "course_id", "name", "description", "number", "release_date").
		Values(lsn.ID, lsn.CourseID, lsn.Name, lsn.Description, lsn.Number, lsn.ReleaseDate).
		ToSql()
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "building lesson insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return lsn, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	query, args, err := psql.Select("*").From("lesson").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "building lesson query")
	}
	var row lessonRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return row.toLesson(), nil
}

func (repo courseRepository) QueryCourseLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	query, args, err := psql.Select("*").From("lesson").
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("number ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building lessons query")
	}
	var rows []lessonRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.toLesson())
	}
	return lessons, nil
}

func (repo courseRepository) CreateMaterial(ctx context.Context, mat course.Material) (course.Material, error) {
	mat.ID = uuid.New().String()
	query, args, err := psql.Insert("material").
		Columns("id", "lesson_id", "name", "embedded_video", "file").
		Values(mat.ID, mat.LessonID, mat.Name, mat.EmbeddedVideo, mat.File).
		ToSql()
	if err != nil {
		return course.Material{}, errors.Wrap(err, "building material insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return course.Material{}, errors.Wrap(err, "inserting material")
	}
	return mat, nil
}

func (repo courseRepository) QueryLessonMaterials(ctx context.Context, lessonID string) ([]course.Material, error) {
	query, args, err := psql.Select("*").From("material").
		Where(sq.Eq{"lesson_id": lessonID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building materials query")
	}
	var rows []materialRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	materials := make([]course.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toMaterial())
	}
	return materials, nil
}

func (repo courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	enr.ID = uuid.New().String()
	query, args, err := psql.Insert("enrollment").
		Columns("id", "user_id", "course_id", "status", "created_at", "updated_at").
		Values(enr.ID, enr.UserID, enr.CourseID, enr.Status, enr.CreatedAt, enr.UpdatedAt).
		ToSql()
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "building enrollment insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		// unique (user_id, course_id)
		if isUniqueViolation(err) {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrollment(ctx context.Context, id string) (course.Enrollment, error) {
	query, args, err := psql.Select("*").From("enrollment").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "building enrollment query")
	}
	var row enrollmentRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrEnrollmentNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo courseRepository) GetUserEnrollment(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	query, args, err := psql.Select("*").From("enrollment").
		Where(sq.Eq{"user_id": userID, "course_id": courseID}).
		ToSql()
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "building enrollment query")
	}
	var row enrollmentRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrEnrollmentNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo courseRepository) QueryUserEnrollments(ctx context.Context, userID string) ([]course.Enrollment, error) {
	query, args, err := psql.Select("*").From("enrollment").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building enrollments query")
	}
	var rows []enrollmentRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, row.toEnrollment())
	}
	return enrollments, nil
}

func (repo courseRepository) QueryCourseEnrollments(ctx context.Context, courseID, status string) ([]course.Enrollment, error) {
	q := psql.Select(
		"e.id", "e.user_id", "e.course_id", "e.status", "e.created_at", "e.updated_at",
		"u.name AS user_name", "u.email AS user_email",
	).
		From("enrollment e").
		Join(`"user" u ON u.id = e.user_id`).
		Where(sq.Eq{"e.course_id": courseID}).
		OrderBy("e.created_at ASC")
	if status != "" {
		q = q.Where(sq.Eq{"e.status": status})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building enrollments query")
	}
	var rows []enrollmentRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, row.toEnrollment())
	}
	return enrollments, nil
}

func (repo courseRepository) UpdateEnrollmentStatus(ctx context.Context, id, status string) (course.Enrollment, error) {
	query, args, err := psql.Update("enrollment").
		Set("status", status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "building enrollment update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	return repo.GetEnrollment(ctx, id)
}

func (repo courseRepository) CreateAnnouncement(ctx context.Context, ann course.Announcement) (course.Announcement, error) {
	ann.ID = uuid.New().String()
	query, args, err := psql.Insert("announcement").
		Columns("id", "course_id", "title", "content", "created_at", "updated_at").
		Values(ann.ID, ann.CourseID, ann.Title, ann.Content, ann.CreatedAt, ann.UpdatedAt).
		ToSql()
	if err != nil {
		return course.Announcement{}, errors.Wrap(err, "building announcement insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return course.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return ann, nil
}

func (repo courseRepository) GetAnnouncement(ctx context.Context, id string) (course.Announcement, error) {
	query, args, err := psql.Select("*").From("announcement").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Announcement{}, errors.Wrap(err, "building announcement query")
	}
	var row announcementRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Announcement{}, course.ErrAnnouncementNotFound
		}
		return course.Announcement{}, errors.Wrap(err, "getting announcement")
	}
	return row.toAnnouncement(), nil
}

func (repo courseRepository) QueryCourseAnnouncements(ctx context.Context, courseID string) ([]course.Announcement, error) {
	query, args, err := psql.Select("*").From("announcement").
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building announcements query")
	}
	var rows []announcementRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	announcements := make([]course.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toAnnouncement())
	}
	return announcements, nil
}

func (repo courseRepository) UpdateAnnouncement(ctx context.Context, ann course.Announcement) (course.Announcement, error) {
	query, args, err := psql.Update("announcement").
		Set("title", ann.Title).
		Set("content", ann.Content).
		Set("updated_at", ann.UpdatedAt.UTC()).
		Where(sq.Eq{"id": ann.ID}).
		ToSql()
	if err != nil {
		return course.Announcement{}, errors.Wrap(err, "building announcement update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Announcement{}, errors.Wrap(err, "updating announcement")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Announcement{}, course.ErrAnnouncementNotFound
	}
	return ann, nil
}

func (repo courseRepository) CreateComment(ctx context.Context, cmt course.Comment) (course.Comment, error) {
	cmt.ID = uuid.New().String()
	query, args, err := psql.Insert("comment").
		Columns("id", "announcement_id", "user_id", "comment", "created_at", "updated_at").
		Values(cmt.ID, cmt.AnnouncementID, cmt.UserID, cmt.Comment, cmt.CreatedAt, cmt.UpdatedAt).
		ToSql()
	if err != nil {
		return course.Comment{}, errors.Wrap(err, "building comment insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return course.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return cmt, nil
}

func (repo courseRepository) QueryAnnouncementComments(ctx context.Context, announcementID string) ([]course.Comment, error) {
	query, args, err := psql.Select("*").From("comment").
		Where(sq.Eq{"announcement_id": announcementID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building comments query")
	}
	var rows []commentRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	comments := make([]course.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.toComment())
	}
	return comments, nil
}
