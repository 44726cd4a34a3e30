package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/simplemooc/core"
)

// Enrollment statuses
const (
	EnrollmentPending   = "pending"
	EnrollmentApproved  = "approved"
	EnrollmentCancelled = "cancelled"
)

type Course struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	About       string      `json:"about"`
	StartDate   null.Time   `json:"start_date"`
	Image       null.String `json:"image"` // storage path of the uploaded image
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Number      int       `json:"number"`
	ReleaseDate null.Time `json:"release_date"`
}

// Released reports whether the lesson is available to enrolled students.
func (l Lesson) Released() bool {
	return l.ReleaseDate.Valid && !l.ReleaseDate.Time.After(time.Now().UTC())
}

type Material struct {
	ID            string      `json:"id"`
	LessonID      string      `json:"lesson_id"`
	Name          string      `json:"name"`
	EmbeddedVideo null.String `json:"embedded_video"`
	File          null.String `json:"file"`
}

// Viewable reports whether the material is consumed inline (embedded video)
// as opposed to downloaded.
func (m Material) Viewable() bool {
	return m.EmbeddedVideo.Valid && m.EmbeddedVideo.String != ""
}

type Enrollment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// read-only fields populated on joined queries
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

func (e Enrollment) Approved() bool { return e.Status == EnrollmentApproved }

type Announcement struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Comment struct {
	ID             string    `json:"id"`
	AnnouncementID string    `json:"announcement_id"`
	UserID         string    `json:"user_id"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Slug        string    `json:"slug" validate:"omitempty,max=100"`
	Description string    `json:"description"`
	About       string    `json:"about"`
	StartDate   null.Time `json:"start_date"`
	Image       string    `json:"image"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	nc.About = core.CleanString(nc.About)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Name        string    `json:"name" validate:"omitempty,max=100"`
	Description string    `json:"description"`
	About       string    `json:"about"`
	StartDate   null.Time `json:"start_date"`
	Image       string    `json:"image"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Description = core.CleanString(uc.Description)
	uc.About = core.CleanString(uc.About)
	return validate.Struct(uc)
}

// NewLesson contains information needed to add a Lesson to a Course.
type NewLesson struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Description string    `json:"description"`
	Number      int       `json:"number" validate:"min=0"`
	ReleaseDate null.Time `json:"release_date"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Name = core.CleanString(nl.Name)
	nl.Description = core.CleanString(nl.Description)
	return validate.Struct(nl)
}

// NewMaterial contains information needed to add a Material to a Lesson.
// Exactly one of EmbeddedVideo or File must be provided.
type NewMaterial struct {
	Name          string `json:"name" validate:"required,max=100"`
	EmbeddedVideo string `json:"embedded_video"`
	File          string `json:"file"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Name = core.CleanString(nm.Name)
	nm.EmbeddedVideo = core.CleanString(nm.EmbeddedVideo)
	nm.File = core.CleanString(nm.File)
	return validate.Struct(nm)
}

// NewAnnouncement contains information needed to announce to a Course.
type NewAnnouncement struct {
	Title   string `json:"title" validate:"required,max=100"`
	Content string `json:"content" validate:"required"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Content = core.CleanString(na.Content)
	return validate.Struct(na)
}

// UpdateAnnouncement edits an Announcement; edits never re-notify enrollees.
type UpdateAnnouncement struct {
	Title   string `json:"title" validate:"omitempty,max=100"`
	Content string `json:"content"`
}

func (ua *UpdateAnnouncement) Validate(validate *validator.Validate) error {
	ua.Title = core.CleanString(ua.Title)
	ua.Content = core.CleanString(ua.Content)
	return validate.Struct(ua)
}

// NewComment contains information needed to comment on an Announcement.
type NewComment struct {
	Comment string `json:"comment" validate:"required"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Comment = core.CleanString(nc.Comment)
	return validate.Struct(nc)
}

type QueryFilter struct {
	Search string `query:"search"`
}

// GetFilter: filter to use to get a Course. fields are mutually exclusive
type GetFilter struct {
	ID   string
	Slug string
}

func (qf *QueryFilter) IsEmpty() bool { return qf.Search == "" }

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
