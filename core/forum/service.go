package forum

import (
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"github.com/trezcool/simplemooc/core"
)

var (
	// errors
	ErrNotFound        = errors.New("thread not found")
	ErrReplyNotFound   = errors.New("reply not found")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrNotThreadAuthor = errors.New("only the thread author can mark the correct reply")
	ErrSlugExists      = errors.New("a thread with this slug already exists")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slg string, excludedThreads ...Thread) error
		CreateThread(ctx context.Context, thr Thread) (Thread, error)
		GetThread(ctx context.Context, filter GetFilter) (Thread, error)
		UpdateThread(ctx context.Context, thr Thread) (Thread, error)
		// QueryThreads returns one page of threads matching the filter, plus the
		// total match count. Tag does a case-insensitive substring match against
		// each thread's tags.
		QueryThreads(ctx context.Context, filter *QueryFilter, limit, offset int) ([]Thread, int, error)
		// IncrementThreadViews bumps a thread's view counter without touching
		// its modification time.
		IncrementThreadViews(ctx context.Context, id string) error
		// QueryTags returns the distinct tags in use, alphabetically.
		QueryTags(ctx context.Context) ([]string, error)

		// CreateReply creates the reply, increments the thread's answer counter
		// and bumps its modification time, atomically.
		CreateReply(ctx context.Context, rpl Reply) (Reply, error)
		GetReply(ctx context.Context, id string) (Reply, error)
		// QueryThreadReplies returns a thread's replies, the correct one first,
		// then oldest first.
		QueryThreadReplies(ctx context.Context, threadID string) ([]Reply, error)
		SetReplyCorrect(ctx context.Context, id string, correct bool) (Reply, error)
	}

	Service interface {
		Create(userID string, nt NewThread) (Thread, error)
		// Query returns one page of the thread listing. The first page is
		// always valid, even when no threads exist; any other page past the
		// end fails with ErrPageOutOfRange.
		Query(filter *QueryFilter) ([]Thread, core.Pagination, error)
		GetByID(id string) (Thread, error)
		GetBySlug(slg string) (Thread, error)
		// Visit fetches a thread for display and counts the visit.
		Visit(slg string) (Thread, error)
		Update(thr Thread, ut UpdateThread) (Thread, error)
		Tags() ([]string, error)

		AddReply(thr Thread, userID string, nr NewReply) (Reply, error)
		Replies(thr Thread) ([]Reply, error)
		GetReply(id string) (Reply, error)
		// MarkCorrect toggles a reply's correct flag. Only the thread's author
		// may do so.
		MarkCorrect(thr Thread, rpl Reply, byUserID string, correct bool) (Reply, error)
	}

	service struct {
		repo Repository
		conf *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, conf *core.Config) Service {
	return &service{
		repo: repo,
		conf: conf,
	}
}

// uniqueSlug derives a slug from the title, suffixing a counter on collision.
func (svc *service) uniqueSlug(title string, exclThreads ...Thread) (string, error) {
	base := slug.Make(title)
	slg := base
	for i := 2; ; i++ {
		err := svc.repo.CheckSlugUniqueness(context.Background(), slg, exclThreads...)
		if err == nil {
			return slg, nil
		}
		if errors.Cause(err) != ErrSlugExists {
			return "", err
		}
		slg = fmt.Sprintf("%s-%d", base, i)
	}
}

func (svc *service) Create(userID string, nt NewThread) (Thread, error) {
	slg, err := svc.uniqueSlug(nt.Title)
	if err != nil {
		return Thread{}, err
	}

	now := time.Now().UTC()
	thr := Thread{
		UserID:    userID,
		Title:     nt.Title,
		Slug:      slg,
		Body:      nt.Body,
		Tags:      nt.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateThread(context.Background(), thr)
}

func (svc *service) Query(filter *QueryFilter) ([]Thread, core.Pagination, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()

	pageSize := svc.conf.ForumPageSize
	threads, count, err := svc.repo.QueryThreads(context.Background(), filter, pageSize, (filter.Page-1)*pageSize)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	pagination, ok := core.NewPagination(filter.Page, pageSize, count)
	if !ok {
		return nil, pagination, ErrPageOutOfRange
	}
	return threads, pagination, nil
}

func (svc *service) GetByID(id string) (Thread, error) {
	return svc.repo.GetThread(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetBySlug(slg string) (Thread, error) {
	return svc.repo.GetThread(context.Background(), GetFilter{Slug: core.CleanString(slg, true /* lower */)})
}

func (svc *service) Visit(slg string) (Thread, error) {
	thr, err := svc.GetBySlug(slg)
	if err != nil {
		return Thread{}, err
	}
	if err = svc.repo.IncrementThreadViews(context.Background(), thr.ID); err != nil {
		return Thread{}, err
	}
	thr.Views++
	return thr, nil
}

func (svc *service) Update(thr Thread, ut UpdateThread) (Thread, error) {
	if ut.Title != "" && ut.Title != thr.Title {
		slg, err := svc.uniqueSlug(ut.Title, thr)
		if err != nil {
			return Thread{}, err
		}
		thr.Title = ut.Title
		thr.Slug = slg
	}
	if ut.Body != "" {
		thr.Body = ut.Body
	}
	if ut.Tags != nil {
		thr.Tags = ut.Tags
	}
	thr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateThread(context.Background(), thr)
}

func (svc *service) Tags() ([]string, error) {
	return svc.repo.QueryTags(context.Background())
}

func (svc *service) AddReply(thr Thread, userID string, nr NewReply) (Reply, error) {
	now := time.Now().UTC()
	rpl := Reply{
		ThreadID:  thr.ID,
		UserID:    userID,
		Reply:     nr.Reply,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateReply(context.Background(), rpl)
}

func (svc *service) Replies(thr Thread) ([]Reply, error) {
	return svc.repo.QueryThreadReplies(context.Background(), thr.ID)
}

func (svc *service) GetReply(id string) (Reply, error) {
	return svc.repo.GetReply(context.Background(), id)
}

func (svc *service) MarkCorrect(thr Thread, rpl Reply, byUserID string, correct bool) (Reply, error) {
	if thr.UserID != byUserID {
		return Reply{}, ErrNotThreadAuthor
	}
	if rpl.ThreadID != thr.ID {
		return Reply{}, ErrReplyNotFound
	}
	return svc.repo.SetReplyCorrect(context.Background(), rpl.ID, correct)
}
