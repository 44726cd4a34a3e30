package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/simplemooc/core/forum"
)

type forumRepository struct {
	db      *threadTable
	replies *replyTable
	users   *userTable
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *DB) forum.Repository {
	return &forumRepository{db: db.thread, replies: db.reply, users: db.user}
}

func (repo *forumRepository) query() []forum.Thread {
	threads := make([]forum.Thread, 0, len(repo.db.table))
	for _, thr := range repo.db.table {
		threads = append(threads, *thr)
	}
	return threads
}

func (repo *forumRepository) withUserName(thr forum.Thread) forum.Thread {
	if usr, ok := repo.users.table[thr.UserID]; ok {
		thr.UserName = usr.Name
	}
	return thr
}

func (repo *forumRepository) CheckSlugUniqueness(_ context.Context, slg string, excludedThreads ...forum.Thread) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, thr := range repo.query() {
		if thr.Slug != slg {
			continue
		}
		excluded := false
		for _, excl := range excludedThreads {
			if excl.ID == thr.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return forum.ErrSlugExists
		}
	}
	return nil
}

func (repo *forumRepository) CreateThread(_ context.Context, thr forum.Thread) (forum.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	thr.ID = uuid.New().String()
	repo.db.table[thr.ID] = &thr
	return thr, nil
}

func (repo *forumRepository) GetThread(_ context.Context, filter forum.GetFilter) (forum.Thread, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	switch {
	case filter.ID != "":
		if thr, ok := repo.db.table[filter.ID]; ok {
			return repo.withUserName(*thr), nil
		}
	case filter.Slug != "":
		for _, thr := range repo.query() {
			if thr.Slug == filter.Slug {
				return repo.withUserName(thr), nil
			}
		}
	}
	return forum.Thread{}, forum.ErrNotFound
}

func (repo *forumRepository) UpdateThread(_ context.Context, thr forum.Thread) (forum.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[thr.ID]
	if !ok {
		return forum.Thread{}, forum.ErrNotFound
	}
	// counters are only moved by their dedicated methods
	thr.Views = orig.Views
	thr.Answers = orig.Answers
	repo.db.table[thr.ID] = &thr
	return thr, nil
}

func (repo *forumRepository) QueryThreads(_ context.Context, filter *forum.QueryFilter, limit, offset int) ([]forum.Thread, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	threads := repo.query()

	// threads with any tag matching the keyword ?
	if filter != nil && filter.Tag != "" {
		var filtered []forum.Thread
		tag := strings.ToLower(filter.Tag)
		for _, thr := range threads {
			for _, t := range thr.Tags {
				if strings.Contains(strings.ToLower(t), tag) {
					filtered = append(filtered, thr)
					break
				}
			}
		}
		threads = filtered
	}

	ord := forum.OrderLatest
	if filter != nil {
		ord = filter.Order
	}
	// ties fall back to the most recently active
	sort.SliceStable(threads, func(i, j int) bool {
		switch ord {
		case forum.OrderViews:
			if threads[i].Views != threads[j].Views {
				return threads[i].Views > threads[j].Views
			}
		case forum.OrderAnswers:
			if threads[i].Answers != threads[j].Answers {
				return threads[i].Answers > threads[j].Answers
			}
		}
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})

	count := len(threads)
	if offset >= count {
		return nil, count, nil
	}
	end := offset + limit
	if end > count {
		end = count
	}
	page := make([]forum.Thread, 0, end-offset)
	for _, thr := range threads[offset:end] {
		page = append(page, repo.withUserName(thr))
	}
	return page, count, nil
}

func (repo *forumRepository) IncrementThreadViews(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	thr, ok := repo.db.table[id]
	if !ok {
		return forum.ErrNotFound
	}
	thr.Views++
	return nil
}

func (repo *forumRepository) QueryTags(_ context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]struct{})
	var tags []string
	for _, thr := range repo.db.table {
		for _, tag := range thr.Tags {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (repo *forumRepository) CreateReply(_ context.Context, rpl forum.Reply) (forum.Reply, error) {
	repo.replies.Lock()
	defer repo.replies.Unlock()
	repo.db.Lock()
	defer repo.db.Unlock()

	thr, ok := repo.db.table[rpl.ThreadID]
	if !ok {
		return forum.Reply{}, forum.ErrNotFound
	}

	rpl.ID = uuid.New().String()
	repo.replies.table[rpl.ID] = &rpl
	thr.Answers++
	thr.UpdatedAt = time.Now().UTC()
	return rpl, nil
}

func (repo *forumRepository) GetReply(_ context.Context, id string) (forum.Reply, error) {
	repo.replies.RLock()
	defer repo.replies.RUnlock()

	if rpl, ok := repo.replies.table[id]; ok {
		return *rpl, nil
	}
	return forum.Reply{}, forum.ErrReplyNotFound
}

func (repo *forumRepository) QueryThreadReplies(_ context.Context, threadID string) ([]forum.Reply, error) {
	repo.replies.RLock()
	defer repo.replies.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	var replies []forum.Reply
	for _, rpl := range repo.replies.table {
		if rpl.ThreadID != threadID {
			continue
		}
		r := *rpl
		if usr, ok := repo.users.table[rpl.UserID]; ok {
			r.UserName = usr.Name
		}
		replies = append(replies, r)
	}
	// correct reply first, then oldest first
	sort.SliceStable(replies, func(i, j int) bool {
		if replies[i].Correct != replies[j].Correct {
			return replies[i].Correct
		}
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies, nil
}

func (repo *forumRepository) SetReplyCorrect(_ context.Context, id string, correct bool) (forum.Reply, error) {
	repo.replies.Lock()
	defer repo.replies.Unlock()

	rpl, ok := repo.replies.table[id]
	if !ok {
		return forum.Reply{}, forum.ErrReplyNotFound
	}
	rpl.Correct = correct
	rpl.UpdatedAt = time.Now().UTC()
	return *rpl, nil
}
