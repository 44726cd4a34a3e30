package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/simplemooc/core/forum"
)

type threadRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Title     string         `db:"title"`
	Slug      string         `db:"slug"`
	Body      string         `db:"body"`
	Views     int            `db:"views"`
	Answers   int            `db:"answers"`
	Tags      pq.StringArray `db:"tags"`
	CreatedAt null.Time      `db:"created_at"`
	UpdatedAt null.Time      `db:"updated_at"`
	UserName  null.String    `db:"user_name"`
}

func (row threadRow) toThread() forum.Thread {
	return forum.Thread{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Slug:      row.Slug,
		Body:      row.Body,
		Views:     row.Views,
		Answers:   row.Answers,
		Tags:      row.Tags,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
		UserName:  row.UserName.String,
	}
}

type replyRow struct {
	ID        string      `db:"id"`
	ThreadID  string      `db:"thread_id"`
	UserID    string      `db:"user_id"`
	Reply     string      `db:"reply"`
	Correct   bool        `db:"correct"`
	CreatedAt null.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
	UserName  null.String `db:"user_name"`
}

func (row replyRow) toReply() forum.Reply {
	return forum.Reply{
		ID:        row.ID,
		ThreadID:  row.ThreadID,
		UserID:    row.UserID,
		Reply:     row.Reply,
		Correct:   row.Correct,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
		UserName:  row.UserName.String,
	}
}

type forumRepository struct {
	db *sqlx.DB
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *sqlx.DB) *forumRepository {
	return &forumRepository{db: db}
}

var threadCols = []string{
	"t.id", "t.user_id", "t.title", "t.slug", "t.body", "t.views", "t.answers",
	"t.tags", "t.created_at", "t.updated_at", "u.name AS user_name",
}

func (repo forumRepository) CheckSlugUniqueness(ctx context.Context, slg string, excludedThreads ...forum.Thread) error {
	q := psql.Select("1").From("thread").Where(sq.Eq{"slug": slg})
	if len(excludedThreads) > 0 {
		ids := make([]string, 0, len(excludedThreads))
		for _, thr := range excludedThreads {
			ids = append(ids, thr.ID)
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
	return forum.ErrSlugExists
}

func (repo forumRepository) CreateThread(ctx context.Context, thr forum.Thread) (forum.Thread, error) {
	thr.ID = uuid.New().String()
	query, args, err := psql.Insert("thread").
		Columns("id", "user_id", "title", "slug", "body", "views", "answers", "tags", "created_at", "updated_at").
		Values(thr.ID, thr.UserID, thr.Title, thr.Slug, thr.Body, thr.Views, thr.Answers, pq.StringArray(thr.Tags), thr.CreatedAt, thr.UpdatedAt).
		ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building thread insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return forum.Thread{}, forum.ErrSlugExists
		}
		return forum.Thread{}, errors.Wrap(err, "inserting thread")
	}
	return thr, nil
}

func (repo forumRepository) GetThread(ctx context.Context, filter forum.GetFilter) (forum.Thread, error) {
	q := psql.Select(threadCols...).From("thread t").Join(`"user" u ON u.id = t.user_id`)
	switch {
	case filter.ID != "":
		q = q.Where(sq.Eq{"t.id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"t.slug": filter.Slug})
	default:
		return forum.Thread{}, forum.ErrNotFound
	}

	query, args, err := q.ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building thread query")
	}
	var row threadRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return forum.Thread{}, forum.ErrNotFound
		}
		return forum.Thread{}, errors.Wrap(err, "getting thread")
	}
	return row.toThread(), nil
}

func (repo forumRepository) UpdateThread(ctx context.Context, thr forum.Thread) (forum.Thread, error) {
	query, args, err := psql.Update("thread").
		Set("title", thr.Title).
		Set("slug", thr.Slug).
		Set("body", thr.Body).
		Set("tags", pq.StringArray(thr.Tags)).
		Set("updated_at", thr.UpdatedAt.UTC()).
		Where(sq.Eq{"id": thr.ID}).
		ToSql()
	if err != nil {
		return forum.Thread{}, errors.Wrap(err, "building thread update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return forum.Thread{}, forum.ErrSlugExists
		}
		return forum.Thread{}, errors.Wrap(err, "updating thread")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return forum.Thread{}, forum.ErrNotFound
	}
	return repo.GetThread(ctx, forum.GetFilter{ID: thr.ID})
}

func (repo forumRepository) QueryThreads(ctx context.Context, filter *forum.QueryFilter, limit, offset int) ([]forum.Thread, int, error) {
	q := psql.Select(threadCols...).From("thread t").Join(`"user" u ON u.id = t.user_id`)
	countQ := psql.Select("COUNT(*)").From("thread t")

	if filter != nil && filter.Tag != "" {
		// threads with any tag matching the keyword
		cond := sq.Expr(
			"t.id IN (SELECT id FROM thread, UNNEST(tags) thread_tag WHERE thread_tag ILIKE ?)",
			"%"+filter.Tag+"%",
		)
		q = q.Where(cond)
		countQ = countQ.Where(cond)
	}

	ord := forum.OrderLatest
	if filter != nil {
		ord = filter.Order
	}
	switch ord {
	case forum.OrderViews:
		q = q.OrderBy("t.views DESC", "t.updated_at DESC")
	case forum.OrderAnswers:
		q = q.OrderBy("t.answers DESC", "t.updated_at DESC")
	default:
		q = q.OrderBy("t.updated_at DESC")
	}
	q = q.Limit(uint64(limit)).Offset(uint64(offset))

	query, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "building threads count query")
	}
	var count int
	if err = repo.db.GetContext(ctx, &count, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting threads")
	}

	if query, args, err = q.ToSql(); err != nil {
		return nil, 0, errors.Wrap(err, "building threads query")
	}
	var rows []threadRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying threads")
	}
	threads := make([]forum.Thread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, row.toThread())
	}
	return threads, count, nil
}

func (repo forumRepository) IncrementThreadViews(ctx context.Context, id string) error {
	query, args, err := psql.Update("thread").
		Set("views", sq.Expr("views + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building thread views update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "incrementing thread views")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return forum.ErrNotFound
	}
	return nil
}

func (repo forumRepository) QueryTags(ctx context.Context) ([]string, error) {
	var tags []string
	err := repo.db.SelectContext(ctx, &tags, "SELECT DISTINCT UNNEST(tags) AS tag FROM thread ORDER BY tag")
	if err != nil {
		return nil, errors.Wrap(err, "querying tags")
	}
	return tags, nil
}

func (repo forumRepository) CreateReply(ctx context.Context, rpl forum.Reply) (forum.Reply, error) {
	rpl.ID = uuid.New().String()
	query, args, err := psql.Insert("reply").
		Columns("id", "thread_id", "user_id", "reply", "correct", "created_at", "updated_at").
		Values(rpl.ID, rpl.ThreadID, rpl.UserID, rpl.Reply, rpl.Correct, rpl.CreatedAt, rpl.UpdatedAt).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building reply insert")
	}
	thrQuery, thrArgs, err := psql.Update("thread").
		Set("answers", sq.Expr("answers + 1")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": rpl.ThreadID}).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building thread answers update")
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "starting transaction")
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return forum.Reply{}, errors.Wrap(err, "inserting reply")
	}
	res, err := tx.ExecContext(ctx, thrQuery, thrArgs...)
	if err != nil {
		_ = tx.Rollback()
		return forum.Reply{}, errors.Wrap(err, "updating thread answers")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		return forum.Reply{}, forum.ErrNotFound
	}
	if err = tx.Commit(); err != nil {
		return forum.Reply{}, errors.Wrap(err, "committing reply")
	}
	return rpl, nil
}

func (repo forumRepository) GetReply(ctx context.Context, id string) (forum.Reply, error) {
	query, args, err := psql.Select(
		"r.id", "r.thread_id", "r.user_id", "r.reply", "r.correct", "r.created_at", "r.updated_at",
		"u.name AS user_name",
	).
		From("reply r").
		Join(`"user" u ON u.id = r.user_id`).
		Where(sq.Eq{"r.id": id}).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building reply query")
	}
	var row replyRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return forum.Reply{}, forum.ErrReplyNotFound
		}
		return forum.Reply{}, errors.Wrap(err, "getting reply")
	}
	return row.toReply(), nil
}

func (repo forumRepository) QueryThreadReplies(ctx context.Context, threadID string) ([]forum.Reply, error) {
	query, args, err := psql.Select(
		"r.id", "r.thread_id", "r.user_id", "r.reply", "r.correct", "r.created_at", "r.updated_at",
		"u.name AS user_name",
	).
		From("reply r").
		Join(`"user" u ON u.id = r.user_id`).
		Where(sq.Eq{"r.thread_id": threadID}).
		OrderBy("r.correct DESC", "r.created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building replies query")
	}
	var rows []replyRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying replies")
	}
	replies := make([]forum.Reply, 0, len(rows))
	for _, row := range rows {
		replies = append(replies, row.toReply())
	}
	return replies, nil
}

func (repo forumRepository) SetReplyCorrect(ctx context.Context, id string, correct bool) (forum.Reply, error) {
	query, args, err := psql.Update("reply").
		Set("correct", correct).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "building reply update")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return forum.Reply{}, errors.Wrap(err, "updating reply")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return forum.Reply{}, forum.ErrReplyNotFound
	}
	return repo.GetReply(ctx, id)
}
