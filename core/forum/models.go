package forum

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/trezcool/simplemooc/core"
)

type Thread struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Slug      string         `json:"slug"`
	Body      string         `json:"body"`
	Views     int            `json:"views"`
	Answers   int            `json:"answers"`
	Tags      pq.StringArray `json:"tags"`
	CreatedAt time.Time      `json:"created_at"` // UTC
	UpdatedAt time.Time      `json:"updated_at"` // UTC

	// read-only field populated on joined queries
	UserName string `json:"user_name,omitempty"`
}

type Reply struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Reply     string    `json:"reply"`
	Correct   bool      `json:"correct"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// read-only field populated on joined queries
	UserName string `json:"user_name,omitempty"`
}

// NewThread contains information needed to open a new Thread.
type NewThread struct {
	Title string   `json:"title" validate:"required,max=100"`
	Body  string   `json:"body" validate:"required"`
	Tags  []string `json:"tags" validate:"dive,max=50"`
}

func (nt *NewThread) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Body = core.CleanString(nt.Body)
	tags := nt.Tags[:0]
	for _, tag := range nt.Tags {
		if tag = core.CleanString(tag, true /* lower */); tag != "" {
			tags = append(tags, tag)
		}
	}
	nt.Tags = tags
	return validate.Struct(nt)
}

// UpdateThread defines what information may be provided to modify an existing Thread.
type UpdateThread struct {
	Title string   `json:"title" validate:"omitempty,max=100"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags" validate:"dive,max=50"`
}

func (ut *UpdateThread) Validate(validate *validator.Validate) error {
	ut.Title = core.CleanString(ut.Title)
	ut.Body = core.CleanString(ut.Body)
	tags := ut.Tags[:0]
	for _, tag := range ut.Tags {
		if tag = core.CleanString(tag, true /* lower */); tag != "" {
			tags = append(tags, tag)
		}
	}
	ut.Tags = tags
	return validate.Struct(ut)
}

// NewReply contains information needed to reply to a Thread.
type NewReply struct {
	Reply string `json:"reply" validate:"required"`
}

func (nr *NewReply) Validate(validate *validator.Validate) error {
	nr.Reply = core.CleanString(nr.Reply)
	return validate.Struct(nr)
}

// Thread listing orders
const (
	OrderLatest  = "" // most recently active first
	OrderViews   = "views"
	OrderAnswers = "answers"
)

// GetFilter: filter to use to get a Thread. fields are mutually exclusive
type GetFilter struct {
	ID   string
	Slug string
}

type QueryFilter struct {
	Tag   string `query:"tag"`
	Order string `query:"order"`
	Page  int    `query:"page"`
}

func (qf *QueryFilter) Clean() {
	qf.Tag = core.CleanString(qf.Tag)
	switch qf.Order {
	case OrderViews, OrderAnswers:
	default:
		qf.Order = OrderLatest
	}
	if qf.Page < 1 {
		qf.Page = 1
	}
}

// Ordering maps the requested order to its column ordering. The default lists
// the most recently active threads first.
func (qf *QueryFilter) Ordering() core.DBOrdering {
	switch qf.Order {
	case OrderViews:
		return core.DBOrdering{Field: "views"}
	case OrderAnswers:
		return core.DBOrdering{Field: "answers"}
	default:
		return core.DBOrdering{Field: "updated_at"}
	}
}
