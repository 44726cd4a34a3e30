package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/simplemooc/core/course"
	"github.com/trezcool/simplemooc/core/user"
)

var (
	errCrsNotFoundInCtx = errors.New("course object not found in echo.Context")
	contextCourseKey    = "course"
)

type courseApi struct {
	svc      course.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc course.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	cg := g.Group("/courses")

	// un-authed endpoints: the catalog is public
	cg.GET("", api.query)
	cg.GET("/:slug", api.retrieve, api.ctxCourseMiddleware())

	// authed endpoints
	ag := cg.Group("", jwt)
	ag.POST("", api.create, staffMiddleware())

	dg := ag.Group("/:slug", api.ctxCourseMiddleware())
	dg.PUT("", api.update, staffMiddleware())
	dg.POST("/lessons", api.addLesson, staffMiddleware())
	dg.GET("/lessons", api.lessons)
	dg.POST("/enroll", api.enroll)
	dg.POST("/announcements", api.announce, staffMiddleware())
	dg.GET("/announcements", api.announcements)

	lg := g.Group("/lessons/:id", jwt)
	lg.POST("/materials", api.addMaterial, staffMiddleware())
	lg.GET("/materials", api.materials)

	eg := g.Group("/enrollments", jwt)
	eg.GET("", api.myEnrollments)
	eg.PUT("/:id/status", api.setEnrollmentStatus, staffMiddleware())

	ng := g.Group("/announcements/:id", jwt)
	ng.GET("", api.retrieveAnnouncement)
	ng.PUT("", api.updateAnnouncement, staffMiddleware())
	ng.GET("/comments", api.comments)
	ng.POST("/comments", api.addComment)
}

// ctxCourseMiddleware loads the course matching the slug param into the context.
func (api *courseApi) ctxCourseMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			crs, err := api.svc.GetBySlug(ctx.Param("slug"))
			if err != nil {
				if errors.Cause(err) == course.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course by slug")
			}
			ctx.Set(contextCourseKey, crs)
			return next(ctx)
		}
	}
}

func (api *courseApi) contextCourse(ctx echo.Context) (course.Course, error) {
	crs, ok := ctx.Get(contextCourseKey).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCrsNotFoundInCtx, "retrieving course from context")
	}
	return crs, nil
}

// requireEnrollment passes staff through; everyone else needs an approved
// enrollment in the course.
func (api *courseApi) requireEnrollment(ctx echo.Context, crs course.Course) (user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	if ctxUsr.IsStaff {
		return ctxUsr, nil
	}
	enr, err := api.svc.GetUserEnrollment(ctxUsr.ID, crs.ID)
	if err != nil {
		if errors.Cause(err) == course.ErrEnrollmentNotFound {
			return user.User{}, errHttpForbidden
		}
		return user.User{}, errors.Wrap(err, "getting enrollment")
	}
	if !enr.Approved() {
		return user.User{}, errHttpForbidden
	}
	return ctxUsr, nil
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()

	courses, err := api.svc.Query(filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err = api.svc.Update(crs, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.AddLesson(crs, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

// lessons lists a course's lessons for enrolled students; unreleased lessons
// are only shown to staff.
func (api *courseApi) lessons(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := api.requireEnrollment(ctx, crs)
	if err != nil {
		return err
	}

	lessons, err := api.svc.Lessons(crs, !ctxUsr.IsStaff)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) addMaterial(ctx echo.Context) error {
	lsn, err := api.svc.GetLesson(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding lesson by ID")
	}

	var data course.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mat, err := api.svc.AddMaterial(lsn, data)
	if err != nil {
		return errors.Wrap(err, "adding material")
	}
	return ctx.JSON(http.StatusCreated, mat)
}

func (api *courseApi) materials(ctx echo.Context) error {
	lsn, err := api.svc.GetLesson(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding lesson by ID")
	}
	crs, err := api.svc.GetByID(lsn.CourseID)
	if err != nil {
		return errors.Wrap(err, "finding lesson course")
	}
	ctxUsr, err := api.requireEnrollment(ctx, crs)
	if err != nil {
		return err
	}
	if !ctxUsr.IsStaff && !lsn.Released() {
		return errHttpNotFound
	}

	materials, err := api.svc.Materials(lsn)
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []course.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enr, err := api.svc.Enroll(ctxUsr.ID, crs)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) myEnrollments(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enrollments, err := api.svc.UserEnrollments(ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *courseApi) setEnrollmentStatus(ctx echo.Context) error {
	var data EnrollmentStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollmentStatusRequest")
	}

	enr, err := api.svc.SetEnrollmentStatus(ctx.Param("id"), data.Status)
	if err != nil {
		if errors.Cause(err) == course.ErrEnrollmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating enrollment status")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) announce(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ann, err := api.svc.Announce(crs, data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, ann)
}

func (api *courseApi) announcements(ctx echo.Context) error {
	crs, err := api.contextCourse(ctx)
	if err != nil {
		return err
	}
	if _, err = api.requireEnrollment(ctx, crs); err != nil {
		return err
	}

	announcements, err := api.svc.Announcements(crs)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if announcements == nil {
		announcements = []course.Announcement{}
	}
	return ctx.JSON(http.StatusOK, announcements)
}

func (api *courseApi) getAnnouncementForContext(ctx echo.Context) (course.Announcement, course.Course, error) {
	ann, err := api.svc.GetAnnouncement(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrAnnouncementNotFound {
			return course.Announcement{}, course.Course{}, errHttpNotFound
		}
		return course.Announcement{}, course.Course{}, errors.Wrap(err, "finding announcement by ID")
	}
	crs, err := api.svc.GetByID(ann.CourseID)
	if err != nil {
		return course.Announcement{}, course.Course{}, errors.Wrap(err, "finding announcement course")
	}
	return ann, crs, nil
}

func (api *courseApi) retrieveAnnouncement(ctx echo.Context) error {
	ann, crs, err := api.getAnnouncementForContext(ctx)
	if err != nil {
		return err
	}
	if _, err = api.requireEnrollment(ctx, crs); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *courseApi) updateAnnouncement(ctx echo.Context) error {
	ann, _, err := api.getAnnouncementForContext(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ann, err = api.svc.UpdateAnnouncement(ann, data)
	if err != nil {
		return errors.Wrap(err, "updating announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *courseApi) comments(ctx echo.Context) error {
	ann, crs, err := api.getAnnouncementForContext(ctx)
	if err != nil {
		return err
	}
	if _, err = api.requireEnrollment(ctx, crs); err != nil {
		return err
	}

	comments, err := api.svc.Comments(ann)
	if err != nil {
		return errors.Wrap(err, "querying comments")
	}
	if comments == nil {
		comments = []course.Comment{}
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *courseApi) addComment(ctx echo.Context) error {
	ann, crs, err := api.getAnnouncementForContext(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := api.requireEnrollment(ctx, crs)
	if err != nil {
		return err
	}

	var data course.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cmt, err := api.svc.AddComment(ann, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, cmt)
}

type EnrollmentStatusRequest struct {
	Status string `json:"status"`
}
