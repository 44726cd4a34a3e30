package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/simplemooc/core"
	"github.com/trezcool/simplemooc/core/forum"
	"github.com/trezcool/simplemooc/core/user"
)

type forumApi struct {
	svc      forum.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerForumAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc forum.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := forumApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	fg := g.Group("/forum")

	// un-authed endpoints: the forum is readable by anyone
	fg.GET("/threads", api.query)
	fg.GET("/threads/:slug", api.retrieve)
	fg.GET("/tags", api.tags)

	// authed endpoints
	ag := fg.Group("", jwt)
	ag.POST("/threads", api.create)
	ag.PUT("/threads/:slug", api.update)
	ag.POST("/threads/:slug/replies", api.addReply)
	ag.PUT("/replies/:id/correct", api.markCorrect)
}

// Handlers

func (api *forumApi) query(ctx echo.Context) error {
	filter := new(forum.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(errors.New("invalid query parameters"))
	}

	threads, pagination, err := api.svc.Query(filter)
	if err != nil {
		if errors.Cause(err) == forum.ErrPageOutOfRange {
			return echo.NewHTTPError(http.StatusNotFound, forum.ErrPageOutOfRange.Error())
		}
		return errors.Wrap(err, "querying threads")
	}
	if threads == nil {
		threads = []forum.Thread{}
	}
	return ctx.JSON(http.StatusOK, ThreadListResponse{Threads: threads, Pagination: pagination})
}

// retrieve fetches a thread with its replies; every fetch counts a visit.
func (api *forumApi) retrieve(ctx echo.Context) error {
	thr, err := api.svc.Visit(ctx.Param("slug"))
	if err != nil {
		if errors.Cause(err) == forum.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding thread by slug")
	}

	replies, err := api.svc.Replies(thr)
	if err != nil {
		return errors.Wrap(err, "querying replies")
	}
	if replies == nil {
		replies = []forum.Reply{}
	}
	return ctx.JSON(http.StatusOK, ThreadDetailResponse{Thread: thr, Replies: replies})
}

func (api *forumApi) tags(ctx echo.Context) error {
	tags, err := api.svc.Tags()
	if err != nil {
		return errors.Wrap(err, "querying tags")
	}
	if tags == nil {
		tags = []string{}
	}
	return ctx.JSON(http.StatusOK, tags)
}

func (api *forumApi) create(ctx echo.Context) error {
	var data forum.NewThread
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewThread")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	thr, err := api.svc.Create(ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating thread")
	}
	return ctx.JSON(http.StatusCreated, thr)
}

// update edits a thread; only its author may do so.
func (api *forumApi) update(ctx echo.Context) error {
	thr, err := api.svc.GetBySlug(ctx.Param("slug"))
	if err != nil {
		if errors.Cause(err) == forum.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding thread")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if thr.UserID != ctxUsr.ID && !ctxUsr.IsStaff {
		return errHttpForbidden
	}

	var data forum.UpdateThread
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateThread")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	thr, err = api.svc.Update(thr, data)
	if err != nil {
		return errors.Wrap(err, "updating thread")
	}
	return ctx.JSON(http.StatusOK, thr)
}

func (api *forumApi) addReply(ctx echo.Context) error {
	thr, err := api.svc.GetBySlug(ctx.Param("slug"))
	if err != nil {
		if errors.Cause(err) == forum.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding thread")
	}

	var data forum.NewReply
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rpl, err := api.svc.AddReply(thr, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding reply")
	}
	return ctx.JSON(http.StatusCreated, rpl)
}

// markCorrect flags a reply as the accepted answer; thread author only.
func (api *forumApi) markCorrect(ctx echo.Context) error {
	rpl, err := api.svc.GetReply(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == forum.ErrReplyNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding reply by ID")
	}
	thr, err := api.svc.GetByID(rpl.ThreadID)
	if err != nil {
		return errors.Wrap(err, "finding reply thread")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data MarkCorrectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkCorrectRequest")
	}
	correct := true
	if data.Correct != nil {
		correct = *data.Correct
	}

	rpl, err = api.svc.MarkCorrect(thr, rpl, ctxUsr.ID, correct)
	if err != nil {
		if errors.Cause(err) == forum.ErrNotThreadAuthor {
			return errHttpForbidden
		}
		return errors.Wrap(err, "marking reply correct")
	}
	return ctx.JSON(http.StatusOK, rpl)
}

type (
	ThreadListResponse struct {
		Threads    []forum.Thread  `json:"threads"`
		Pagination core.Pagination `json:"pagination"`
	}

	ThreadDetailResponse struct {
		Thread  forum.Thread  `json:"thread"`
		Replies []forum.Reply `json:"replies"`
	}

	MarkCorrectRequest struct {
		Correct *bool `json:"correct"`
	}
)
